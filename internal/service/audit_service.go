package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/clock"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// History is a reader's view of a request timeline, newest first, ending
// with the synthetic ORIGINAL entry.
type History struct {
	Events     []domain.AuditEvent
	MarkedRead int64
}

// AuditService appends and reads the request audit trail.
type AuditService struct {
	store     repository.Store
	sequences *SequenceGenerator
	clock     clock.Clock
	logger    *zap.Logger
}

// AuditDependencies bundles collaborators.
type AuditDependencies struct {
	Store     repository.Store
	Sequences *SequenceGenerator
	Clock     clock.Clock
	Logger    *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(deps AuditDependencies) *AuditService {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuditService{
		store:     deps.Store,
		sequences: deps.Sequences,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// Append stores event with a fresh UPD code inside the caller's transaction.
func (s *AuditService) Append(ctx context.Context, repos repository.Repositories, event *domain.AuditEvent) error {
	if event.Kind == domain.AuditKindOriginal {
		return apperrors.NewInvalidPayload("synthetic events cannot be stored", nil)
	}
	code, err := s.sequences.Next(ctx, repos, domain.StreamAudit)
	if err != nil {
		return apperrors.MapError(err)
	}
	event.Radicado = code
	event.IsRead = false
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock.Now()
	}
	if err := repos.Events.Create(ctx, event); err != nil {
		return repoError(err, "request update")
	}
	return nil
}

// MarkSeen flags every unread event of requestID not written by readerID as read.
func (s *AuditService) MarkSeen(ctx context.Context, requestID, readerID string) (int64, error) {
	n, err := s.store.Repos().Events.MarkRead(ctx, requestID, readerID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return n, nil
}

// ListEvents returns the stored events of requestID, most recent first.
func (s *AuditService) ListEvents(ctx context.Context, requestID string) ([]domain.AuditEvent, error) {
	events, err := s.store.Repos().Events.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return events, nil
}

// History marks events as seen by readerID, when given, and then returns the
// full timeline so the reader observes its own marks.
func (s *AuditService) History(ctx context.Context, requestID string, readerID *string) (*History, error) {
	var out History
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		req, err := repos.Requests.GetByID(ctx, requestID)
		if err != nil {
			return repoError(err, "request")
		}
		if readerID != nil && *readerID != "" {
			marked, err := repos.Events.MarkRead(ctx, requestID, *readerID)
			if err != nil {
				return apperrors.MapError(err)
			}
			out.MarkedRead = marked
		}
		events, err := repos.Events.ListByRequest(ctx, requestID)
		if err != nil {
			return apperrors.MapError(err)
		}
		out.Events = append(events, originalEntry(req))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UnreadCount returns how many events of requestID readerID has not seen.
func (s *AuditService) UnreadCount(ctx context.Context, requestID, readerID string) (int64, error) {
	n, err := s.store.Repos().Events.CountUnread(ctx, requestID, readerID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return n, nil
}

func originalEntry(req *domain.Request) domain.AuditEvent {
	citizen := req.CitizenID
	return domain.AuditEvent{
		RequestID: req.ID,
		Radicado:  req.Radicado,
		Kind:      domain.AuditKindOriginal,
		ActorID:   &citizen,
		ToAreaID:  req.CurrentAreaID,
		Message:   req.Subject,
		Payload:   req.Content,
		IsRead:    true,
		CreatedAt: req.CreatedAt,
	}
}
