package service

import (
	"errors"

	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// repoError translates repository sentinels into domain errors for resource.
func repoError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict("duplicate filing code")
	default:
		return apperrors.MapError(err)
	}
}
