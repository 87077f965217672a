package repository

import (
	"context"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// EntityRepository reads tenant branding.
type EntityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
}

type entityRepository struct {
	db DBTX
}

func (r *entityRepository) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	const query = `SELECT id, name, img_url FROM entities WHERE id=$1`
	var entity domain.Entity
	if err := r.db.QueryRow(ctx, query, id).Scan(&entity.ID, &entity.Name, &entity.ImgURL); err != nil {
		return nil, translate(err)
	}
	return &entity, nil
}
