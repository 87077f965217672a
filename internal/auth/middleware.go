package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
	Role domain.Role
}

// Actor returns the lifecycle actor for the principal.
func (p *Principal) Actor() domain.Actor {
	return domain.Actor{UserID: p.User.ID, Role: p.Role}
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthenticated("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthenticated("invalid authorization header")
	}

	principal, err := m.Resolve(c.UserContext(), parts[1])
	if err != nil {
		return err
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// Resolve turns a raw token into a principal backed by an active user.
func (m *AuthMiddleware) Resolve(ctx context.Context, token string) (*Principal, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthenticated("invalid token")
	}
	if uuid.Validate(claims.Subject) != nil {
		return nil, apperrors.NewUnauthenticated("invalid token subject")
	}

	user, err := m.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthenticated("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, apperrors.NewUnauthenticated("user is inactive")
	}

	role := user.Role
	if role == "" {
		role = claims.Role
	}
	return &Principal{User: user, Role: role}, nil
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// ActorFromContext returns the caller as a lifecycle actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return domain.Actor{}, apperrors.NewUnauthenticated("authentication required")
	}
	return principal.Actor(), nil
}
