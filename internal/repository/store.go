package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolation = "23505"

// DBTX is satisfied by both the pool and an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups every repository bound to the same connection or transaction.
type Repositories struct {
	Requests   RequestRepository
	Events     AuditEventRepository
	Areas      AreaRepository
	Procedures ProcedureRepository
	Users      UserRepository
	Sequences  SequenceRepository
	External   ExternalRequestRepository
	Entities   EntityRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type postgresStore struct {
	pool  *pgxpool.Pool
	repos Repositories
}

// NewPostgresStore builds a Store backed by the pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool, repos: newRepositories(pool)}
}

func newRepositories(db DBTX) Repositories {
	return Repositories{
		Requests:   &requestRepository{db: db},
		Events:     &auditEventRepository{db: db},
		Areas:      &areaRepository{db: db},
		Procedures: &procedureRepository{db: db},
		Users:      &userRepository{db: db},
		Sequences:  &sequenceRepository{db: db},
		External:   &externalRequestRepository{db: db},
		Entities:   &entityRepository{db: db},
	}
}

func (s *postgresStore) Repos() Repositories {
	return s.repos
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}
	return translate(tx.Commit(ctx))
}

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// searchPage only defaults the window; report callers merging two sources ask for deep prefixes.
func searchPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
