package repository

import (
	"context"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// ProcedureRepository reads entity-configured procedures.
type ProcedureRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Procedure, error)
}

type procedureRepository struct {
	db DBTX
}

func (r *procedureRepository) GetByID(ctx context.Context, id string) (*domain.Procedure, error) {
	const query = `SELECT id, name, entity_id, area_id, max_response_days FROM procedures WHERE id=$1`
	var proc domain.Procedure
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&proc.ID,
		&proc.Name,
		&proc.EntityID,
		&proc.AreaID,
		&proc.MaxResponseDays,
	); err != nil {
		return nil, translate(err)
	}
	return &proc, nil
}
