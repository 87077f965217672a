package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// Count scopes pushed with status badges.
const (
	ScopeAssigned = "assigned"
	ScopeCitizen  = "citizen"
)

// ListFilter narrows inbox listings.
type ListFilter struct {
	Statuses []domain.RequestStatus
	Limit    int
	Offset   int
}

// InboxService lists requests for officers and citizens.
type InboxService struct {
	store  repository.Store
	fanout *events.Fanout
	logger *zap.Logger
}

// NewInboxService constructs the service.
func NewInboxService(store repository.Store, fanout *events.Fanout, logger *zap.Logger) *InboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxService{store: store, fanout: fanout, logger: logger}
}

// ListAssigned returns the requests currently assigned to the staff actor.
func (s *InboxService) ListAssigned(ctx context.Context, actor domain.Actor, filter ListFilter) ([]domain.Request, error) {
	if !domain.HasStaffRole(actor) {
		return nil, apperrors.NewUnauthorized("only staff have an assignment inbox")
	}
	if err := validateStatuses(filter.Statuses); err != nil {
		return nil, err
	}
	return s.list(ctx, repository.RequestFilter{
		AssignedToID: &actor.UserID,
		Statuses:     filter.Statuses,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
}

// CountAssignedByStatus counts the staff actor's inbox per status and pushes
// the result to the actor's user channel.
func (s *InboxService) CountAssignedByStatus(ctx context.Context, actor domain.Actor) (map[domain.RequestStatus]int64, error) {
	if !domain.HasStaffRole(actor) {
		return nil, apperrors.NewUnauthorized("only staff have an assignment inbox")
	}
	return s.count(ctx, actor.UserID, ScopeAssigned, repository.RequestFilter{AssignedToID: &actor.UserID})
}

// ListCitizenRequests returns the requests filed by the actor.
func (s *InboxService) ListCitizenRequests(ctx context.Context, actor domain.Actor, filter ListFilter) ([]domain.Request, error) {
	if actor.UserID == "" {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	if err := validateStatuses(filter.Statuses); err != nil {
		return nil, err
	}
	return s.list(ctx, repository.RequestFilter{
		CitizenID: &actor.UserID,
		Statuses:  filter.Statuses,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
}

// CountCitizenRequestsByStatus counts the actor's filings per status.
func (s *InboxService) CountCitizenRequestsByStatus(ctx context.Context, actor domain.Actor) (map[domain.RequestStatus]int64, error) {
	if actor.UserID == "" {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	return s.count(ctx, actor.UserID, ScopeCitizen, repository.RequestFilter{CitizenID: &actor.UserID})
}

func (s *InboxService) list(ctx context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	reqs, err := s.store.Repos().Requests.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if reqs == nil {
		reqs = []domain.Request{}
	}
	return reqs, nil
}

func (s *InboxService) count(ctx context.Context, userID, scope string, filter repository.RequestFilter) (map[domain.RequestStatus]int64, error) {
	counts, err := s.store.Repos().Requests.CountByStatus(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.fanout.ToUser(ctx, userID, events.Event{
		Type:    events.EventStatusCounts,
		Payload: events.StatusCountsPayload{Scope: scope, Counts: counts},
	})
	return counts, nil
}

func validateStatuses(statuses []domain.RequestStatus) error {
	for _, status := range statuses {
		if !status.Valid() {
			return apperrors.NewInvalidPayload("unknown status filter", map[string]any{"status": string(status)})
		}
	}
	return nil
}
