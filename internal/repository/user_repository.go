package repository

import (
	"context"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// UserRepository defines persistence access for citizens and staff.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListActiveOfficersByArea(ctx context.Context, areaID string) ([]domain.User, error)
	CountActiveByEntity(ctx context.Context, entityID string) (int64, error)
}

type userRepository struct {
	db DBTX
}

const userColumns = `id, full_name, email, role, entity_id, area_id, active, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (full_name, email, role, entity_id, area_id, active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		user.FullName,
		user.Email,
		user.Role,
		user.EntityID,
		user.AreaID,
		user.Active,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return translate(err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id).Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.Role,
		&user.EntityID,
		&user.AreaID,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// ListActiveOfficersByArea returns the assignment roster in stable creation order.
func (r *userRepository) ListActiveOfficersByArea(ctx context.Context, areaID string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
        WHERE area_id=$1 AND role=$2 AND active
        ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, areaID, domain.RoleOfficer)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.FullName,
			&user.Email,
			&user.Role,
			&user.EntityID,
			&user.AreaID,
			&user.Active,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *userRepository) CountActiveByEntity(ctx context.Context, entityID string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE entity_id=$1 AND active`, entityID).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}
