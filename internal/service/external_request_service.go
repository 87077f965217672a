package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/clock"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// ExternalRequestService manages outbound requests filed by staff.
type ExternalRequestService struct {
	store     repository.Store
	sequences *SequenceGenerator
	clock     clock.Clock
	logger    *zap.Logger
}

// ExternalRequestDependencies bundles collaborators.
type ExternalRequestDependencies struct {
	Store     repository.Store
	Sequences *SequenceGenerator
	Clock     clock.Clock
	Logger    *zap.Logger
}

// CreateExternalRequestInput describes an outbound filing.
type CreateExternalRequestInput struct {
	TypeRequest     string
	Recipient       string
	MailRecipient   string
	MaxResponseDays int
	Subject         string
	Content         json.RawMessage
	EntityID        string
}

// NewExternalRequestService constructs the service.
func NewExternalRequestService(deps ExternalRequestDependencies) *ExternalRequestService {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ExternalRequestService{
		store:     deps.Store,
		sequences: deps.Sequences,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// CreateExternalRequest files an outbound request with its own EXT code and
// a deadline from the explicit response budget.
func (s *ExternalRequestService) CreateExternalRequest(ctx context.Context, actor domain.Actor, input CreateExternalRequestInput) (*domain.ExternalRequest, error) {
	if !domain.HasStaffRole(actor) {
		return nil, apperrors.NewUnauthorized("only staff may file external requests")
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" || strings.TrimSpace(input.Recipient) == "" || strings.TrimSpace(input.EntityID) == "" {
		return nil, apperrors.NewInvalidPayload("subject, recipient and entity are required", nil)
	}
	content, err := normalizeContent(input.Content)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	deadline, err := Deadline(now, input.MaxResponseDays)
	if err != nil {
		return nil, err
	}

	var out *domain.ExternalRequest
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Entities.GetByID(ctx, input.EntityID); err != nil {
			return repoError(err, "entity")
		}
		code, err := s.sequences.Next(ctx, repos, domain.StreamExternal)
		if err != nil {
			return apperrors.MapError(err)
		}
		req := &domain.ExternalRequest{
			Radicado:        code,
			TypeRequest:     strings.TrimSpace(input.TypeRequest),
			Recipient:       strings.TrimSpace(input.Recipient),
			MailRecipient:   strings.TrimSpace(input.MailRecipient),
			MaxResponseDays: input.MaxResponseDays,
			Subject:         subject,
			Content:         content,
			Status:          domain.RequestStatusPending,
			EntityID:        input.EntityID,
			UserID:          actor.UserID,
			Deadline:        deadline,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repos.External.Create(ctx, req); err != nil {
			return repoError(err, "external request")
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RequestsCreatedTotal.WithLabelValues("external").Inc()
	s.logger.Info("external request created", zap.String("radicado", out.Radicado))
	return out, nil
}

// CompleteExternalRequest closes an outbound request.
func (s *ExternalRequestService) CompleteExternalRequest(ctx context.Context, actor domain.Actor, id string) (*domain.ExternalRequest, error) {
	if !domain.HasStaffRole(actor) {
		return nil, apperrors.NewUnauthorized("only staff may complete external requests")
	}

	var out *domain.ExternalRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		req, err := repos.External.GetByIDForUpdate(ctx, id)
		if err != nil {
			return repoError(err, "external request")
		}
		if req.Status == domain.RequestStatusCompleted {
			return apperrors.NewConflict("external request is already completed")
		}
		req.Status = domain.RequestStatusCompleted
		req.UpdatedAt = s.clock.Now()
		if err := repos.External.UpdateStatus(ctx, req); err != nil {
			return repoError(err, "external request")
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetExternalRequest loads one outbound request. Staff bound to an entity
// cannot read another entity's requests.
func (s *ExternalRequestService) GetExternalRequest(ctx context.Context, actor domain.Actor, id string) (*domain.ExternalRequest, error) {
	if !domain.HasStaffRole(actor) {
		return nil, apperrors.NewUnauthorized("only staff may read external requests")
	}
	repos := s.store.Repos()
	req, err := repos.External.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "external request")
	}
	user, err := repos.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, repoError(err, "user")
	}
	if user.EntityID != nil && *user.EntityID != req.EntityID {
		return nil, apperrors.NewNotFound("external request")
	}
	return req, nil
}

// ListExternalRequests lists outbound requests of an entity, newest first.
func (s *ExternalRequestService) ListExternalRequests(ctx context.Context, actor domain.Actor, entityID string, limit, offset int) ([]domain.ExternalRequest, error) {
	if !domain.HasStaffRole(actor) {
		return nil, apperrors.NewUnauthorized("only staff may list external requests")
	}
	filter := repository.ExternalRequestFilter{Limit: limit, Offset: offset}
	if entityID != "" {
		filter.EntityID = &entityID
	}
	reqs, err := s.store.Repos().External.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if reqs == nil {
		reqs = []domain.ExternalRequest{}
	}
	return reqs, nil
}
