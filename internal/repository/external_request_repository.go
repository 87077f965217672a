package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// ExternalRequestFilter narrows staff listings of outbound requests.
type ExternalRequestFilter struct {
	EntityID *string
	UserID   *string
	Limit    int
	Offset   int
}

// ExternalRequestRepository persists outbound requests filed by staff.
type ExternalRequestRepository interface {
	Create(ctx context.Context, req *domain.ExternalRequest) error
	GetByID(ctx context.Context, id string) (*domain.ExternalRequest, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.ExternalRequest, error)
	UpdateStatus(ctx context.Context, req *domain.ExternalRequest) error
	List(ctx context.Context, filter ExternalRequestFilter) ([]domain.ExternalRequest, error)
	LatestRadicado(ctx context.Context) (string, error)
	Search(ctx context.Context, search RequestSearch) ([]domain.ExternalRequest, int64, error)
}

type externalRequestRepository struct {
	db DBTX
}

const externalColumns = `id, radicado, type_request, recipient, mail_recipient, max_response_days, subject,
               content, status, entity_id, user_id, deadline, created_at, updated_at`

func (r *externalRequestRepository) Create(ctx context.Context, req *domain.ExternalRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO external_requests (id, radicado, type_request, recipient, mail_recipient, max_response_days,
                                       subject, content, status, entity_id, user_id, deadline, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := r.db.Exec(ctx, query,
		req.ID,
		req.Radicado,
		req.TypeRequest,
		req.Recipient,
		req.MailRecipient,
		req.MaxResponseDays,
		req.Subject,
		req.Content,
		req.Status,
		req.EntityID,
		req.UserID,
		req.Deadline,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return translate(err)
}

func (r *externalRequestRepository) GetByID(ctx context.Context, id string) (*domain.ExternalRequest, error) {
	req, err := scanExternal(r.db.QueryRow(ctx, `SELECT `+externalColumns+` FROM external_requests WHERE id=$1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

func (r *externalRequestRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.ExternalRequest, error) {
	req, err := scanExternal(r.db.QueryRow(ctx, `SELECT `+externalColumns+` FROM external_requests WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

func (r *externalRequestRepository) UpdateStatus(ctx context.Context, req *domain.ExternalRequest) error {
	cmd, err := r.db.Exec(ctx, `UPDATE external_requests SET status=$1, updated_at=$2 WHERE id=$3`,
		req.Status, req.UpdatedAt, req.ID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *externalRequestRepository) List(ctx context.Context, filter ExternalRequestFilter) ([]domain.ExternalRequest, error) {
	clauses := "1=1"
	args := []any{}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		clauses += fmt.Sprintf(" AND entity_id=$%d", len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses += fmt.Sprintf(" AND user_id=$%d", len(args))
	}
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM external_requests WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		externalColumns, clauses, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	return scanExternals(rows)
}

func (r *externalRequestRepository) LatestRadicado(ctx context.Context) (string, error) {
	return latestRadicado(ctx, r.db, "external_requests")
}

func (r *externalRequestRepository) Search(ctx context.Context, search RequestSearch) ([]domain.ExternalRequest, int64, error) {
	where, args := searchWhere(search)
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM external_requests WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	limit, offset := searchPage(search.Limit, search.Offset)
	query := fmt.Sprintf(`SELECT %s FROM external_requests WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		externalColumns, where, limit, offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	result, err := scanExternals(rows)
	return result, total, err
}

func scanExternal(row pgx.Row) (*domain.ExternalRequest, error) {
	var req domain.ExternalRequest
	if err := row.Scan(
		&req.ID,
		&req.Radicado,
		&req.TypeRequest,
		&req.Recipient,
		&req.MailRecipient,
		&req.MaxResponseDays,
		&req.Subject,
		&req.Content,
		&req.Status,
		&req.EntityID,
		&req.UserID,
		&req.Deadline,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

func scanExternals(rows pgx.Rows) ([]domain.ExternalRequest, error) {
	var result []domain.ExternalRequest
	for rows.Next() {
		req, err := scanExternal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}
