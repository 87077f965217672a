package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pqrs-service/internal/domain"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// RequireCitizen ensures the caller files requests as a citizen.
func RequireCitizen() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if principal.Role != domain.RoleCitizen {
			return apperrors.NewUnauthorized("citizen role required")
		}
		return c.Next()
	}
}

// RequireStaffRole ensures the caller holds one of the allowed staff roles.
// With no roles given any staff role passes.
func RequireStaffRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if !principal.Role.IsStaff() {
			return apperrors.NewUnauthorized("staff role required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewUnauthorized("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		return c.Next()
	}
}
