package repository

import (
	"context"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// AreaRepository reads areas and advances their round-robin cursor.
type AreaRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Area, error)
	LockByID(ctx context.Context, id string) (*domain.Area, error)
	UpdateCursor(ctx context.Context, id string, cursor int64) error
	Create(ctx context.Context, area *domain.Area) error
}

type areaRepository struct {
	db DBTX
}

const areaColumns = `id, name, entity_id, last_assigned_index, created_at, updated_at`

func (r *areaRepository) GetByID(ctx context.Context, id string) (*domain.Area, error) {
	return r.fetchSingle(ctx, `SELECT `+areaColumns+` FROM areas WHERE id=$1`, id)
}

// LockByID reads the area holding a row lock until the surrounding transaction ends.
func (r *areaRepository) LockByID(ctx context.Context, id string) (*domain.Area, error) {
	return r.fetchSingle(ctx, `SELECT `+areaColumns+` FROM areas WHERE id=$1 FOR UPDATE`, id)
}

func (r *areaRepository) fetchSingle(ctx context.Context, query, id string) (*domain.Area, error) {
	var area domain.Area
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&area.ID,
		&area.Name,
		&area.EntityID,
		&area.LastAssignedIndex,
		&area.CreatedAt,
		&area.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &area, nil
}

func (r *areaRepository) UpdateCursor(ctx context.Context, id string, cursor int64) error {
	const query = `
        UPDATE areas SET last_assigned_index=$1, updated_at=NOW()
        WHERE id=$2 AND last_assigned_index <= $1`
	cmd, err := r.db.Exec(ctx, query, cursor, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *areaRepository) Create(ctx context.Context, area *domain.Area) error {
	const query = `
        INSERT INTO areas (name, entity_id, last_assigned_index)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		area.Name,
		area.EntityID,
		area.LastAssignedIndex,
	).Scan(&area.ID, &area.CreatedAt, &area.UpdatedAt)
	return translate(err)
}
