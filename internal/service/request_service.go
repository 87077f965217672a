package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/clock"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

const (
	messageAssigned  = "Solicitud asignada al funcionario."
	messageDerived   = "Solicitud derivada"
	messageCompleted = "Solicitud marcada como completada y cerrada."

	warningEmailFailed = "notification email could not be sent"
)

// RequestService drives the citizen request lifecycle.
type RequestService struct {
	store     repository.Store
	sequences *SequenceGenerator
	assigner  *RoundRobinAssigner
	audit     *AuditService
	notifier  *NotificationService
	fanout    *events.Fanout
	clock     clock.Clock
	logger    *zap.Logger
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	Store         repository.Store
	Sequences     *SequenceGenerator
	Assigner      *RoundRobinAssigner
	Audit         *AuditService
	Notifications *NotificationService
	Fanout        *events.Fanout
	Clock         clock.Clock
	Logger        *zap.Logger
}

// CreateRequestInput describes a citizen filing.
type CreateRequestInput struct {
	ProcedureID string
	Subject     string
	Content     json.RawMessage
}

// DeriveRequestInput moves a request to another area.
type DeriveRequestInput struct {
	ToAreaID string
	Message  string
}

// ReplyInput carries a reply message and optional structured data.
type ReplyInput struct {
	Message string
	Payload json.RawMessage
}

// RequestResult is returned by every lifecycle operation. Warnings list
// side effects that failed after the state change committed.
type RequestResult struct {
	Request  *domain.Request
	Event    *domain.AuditEvent
	Warnings []string
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &RequestService{
		store:     deps.Store,
		sequences: deps.Sequences,
		assigner:  deps.Assigner,
		audit:     deps.Audit,
		notifier:  deps.Notifications,
		fanout:    deps.Fanout,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// CreateRequest files a request for the procedure, routes it to the next
// officer of the procedure's area and records the ASSIGNED event.
func (s *RequestService) CreateRequest(ctx context.Context, actor domain.Actor, input CreateRequestInput) (*RequestResult, error) {
	if actor.UserID == "" {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewInvalidPayload("subject is required", nil)
	}
	if strings.TrimSpace(input.ProcedureID) == "" {
		return nil, apperrors.NewInvalidPayload("procedure is required", nil)
	}
	content, err := normalizeContent(input.Content)
	if err != nil {
		return nil, err
	}

	result, err := s.createOnce(ctx, actor, input.ProcedureID, subject, content)
	if apperrors.HasCode(err, apperrors.CodeConflict) {
		s.logger.Warn("filing code collision; resyncing sequences and retrying")
		if syncErr := s.sequences.Resync(ctx); syncErr != nil {
			s.logger.Error("sequence resync failed", zap.Error(syncErr))
		}
		result, err = s.createOnce(ctx, actor, input.ProcedureID, subject, content)
	}
	if err != nil {
		return nil, err
	}

	req := result.Request
	observability.RequestsCreatedTotal.WithLabelValues("internal").Inc()
	s.logger.Info("request created",
		zap.String("radicado", req.Radicado),
		zap.String("procedure_id", req.ProcedureID),
		zap.Stringp("assigned_to", req.AssignedToID),
	)

	s.fanout.ToEntity(ctx, req.EntityID, events.Event{
		Type:      events.EventRequestCreated,
		RequestID: req.ID,
		Radicado:  req.Radicado,
		ActorID:   &actor.UserID,
		Payload: events.RequestCreatedPayload{
			Subject:      req.Subject,
			Status:       req.Status,
			ProcedureID:  req.ProcedureID,
			AreaID:       req.CurrentAreaID,
			AssignedToID: req.AssignedToID,
			Deadline:     req.Deadline,
		},
	})

	if s.notifier != nil {
		if err := s.notifier.RequestFiled(ctx, req); err != nil {
			result.Warnings = append(result.Warnings, warningEmailFailed)
		}
	}
	return result, nil
}

func (s *RequestService) createOnce(ctx context.Context, actor domain.Actor, procedureID, subject string, content json.RawMessage) (*RequestResult, error) {
	var result RequestResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		proc, err := repos.Procedures.GetByID(ctx, procedureID)
		if err != nil {
			return repoError(err, "procedure")
		}
		if proc.AreaID == nil {
			return apperrors.NewNotFound("area")
		}

		now := s.clock.Now()
		deadline, err := Deadline(now, proc.MaxResponseDays)
		if err != nil {
			return err
		}

		assignment, err := s.assigner.Assign(ctx, repos, *proc.AreaID)
		if err != nil {
			return err
		}

		code, err := s.sequences.Next(ctx, repos, domain.StreamRequest)
		if err != nil {
			return apperrors.MapError(err)
		}

		areaID := assignment.Area.ID
		assigneeID := assignment.Assignee.ID
		req := &domain.Request{
			Radicado:      code,
			Subject:       subject,
			Content:       content,
			Status:        domain.RequestStatusPending,
			ProcedureID:   proc.ID,
			EntityID:      proc.EntityID,
			CitizenID:     actor.UserID,
			AssignedToID:  &assigneeID,
			CurrentAreaID: &areaID,
			CreatedAt:     now,
			UpdatedAt:     now,
			Deadline:      deadline,
		}
		if err := repos.Requests.Create(ctx, req); err != nil {
			return repoError(err, "request")
		}

		// ASSIGNED events are authored by the assignee.
		event := &domain.AuditEvent{
			RequestID: req.ID,
			Kind:      domain.AuditKindAssigned,
			ActorID:   &assigneeID,
			ToAreaID:  &areaID,
			ToUserID:  &assigneeID,
			Message:   messageAssigned,
			CreatedAt: now,
		}
		if err := s.audit.Append(ctx, repos, event); err != nil {
			return err
		}

		result.Request = req
		result.Event = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeriveRequest reroutes a request to another area and its next officer.
// The status is unchanged.
func (s *RequestService) DeriveRequest(ctx context.Context, actor domain.Actor, requestID string, input DeriveRequestInput) (*RequestResult, error) {
	if !domain.CanManage(actor) {
		return nil, apperrors.NewUnauthorized("only staff may derive requests")
	}
	toAreaID := strings.TrimSpace(input.ToAreaID)
	if toAreaID == "" {
		return nil, apperrors.NewInvalidPayload("destination area is required", nil)
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = messageDerived
	}

	var result RequestResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		req, err := repos.Requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return repoError(err, "request")
		}
		if req.Status.Terminal() {
			return apperrors.NewConflict("request is already completed")
		}

		assignment, err := s.assigner.Assign(ctx, repos, toAreaID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		fromAreaID := req.CurrentAreaID
		assigneeID := assignment.Assignee.ID
		req.CurrentAreaID = &toAreaID
		req.AssignedToID = &assigneeID
		req.UpdatedAt = now
		if err := repos.Requests.Update(ctx, req); err != nil {
			return repoError(err, "request")
		}

		event := &domain.AuditEvent{
			RequestID:  req.ID,
			Kind:       domain.AuditKindDerived,
			ActorID:    &actor.UserID,
			FromAreaID: fromAreaID,
			ToAreaID:   &toAreaID,
			ToUserID:   &assigneeID,
			Message:    message,
			CreatedAt:  now,
		}
		if err := s.audit.Append(ctx, repos, event); err != nil {
			return err
		}
		result.Request = req
		result.Event = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("request derived",
		zap.String("radicado", result.Request.Radicado),
		zap.Stringp("from_area", result.Event.FromAreaID),
		zap.String("to_area", toAreaID),
	)
	s.publishUpdate(ctx, events.EventRequestDerived, result.Request, result.Event)
	return &result, nil
}

// ReplyToRequest appends a reply. Staff replies are official responses and
// move PENDING or OVERDUE requests to IN_REVIEW.
func (s *RequestService) ReplyToRequest(ctx context.Context, actor domain.Actor, requestID string, input ReplyInput) (*RequestResult, error) {
	if actor.UserID == "" {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	message := strings.TrimSpace(input.Message)
	var payload json.RawMessage
	if len(input.Payload) > 0 {
		if !json.Valid(input.Payload) {
			return nil, apperrors.NewInvalidPayload("reply data must be valid JSON", nil)
		}
		payload = input.Payload
	}
	if message == "" && len(payload) == 0 {
		return nil, apperrors.NewInvalidPayload("reply must carry a message or data", nil)
	}

	var (
		result     RequestResult
		asStaff    bool
		reopenedBy domain.RequestStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		req, err := repos.Requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return repoError(err, "request")
		}
		if !domain.CanReply(actor, req) {
			return apperrors.NewUnauthorized("not allowed to reply to this request")
		}
		if req.Status.Terminal() {
			return apperrors.NewConflict("request is already completed")
		}

		now := s.clock.Now()
		asStaff = domain.RepliesAsStaff(actor, req)
		kind := domain.AuditKindUserReply
		if asStaff {
			kind = domain.AuditKindResponse
			if req.Status != domain.RequestStatusInReview && domain.CanTransition(req.Status, domain.RequestStatusInReview) {
				reopenedBy = req.Status
				req.Status = domain.RequestStatusInReview
			}
		}
		req.UpdatedAt = now
		if err := repos.Requests.Update(ctx, req); err != nil {
			return repoError(err, "request")
		}

		event := &domain.AuditEvent{
			RequestID: req.ID,
			Kind:      kind,
			ActorID:   &actor.UserID,
			Message:   message,
			Payload:   payload,
			CreatedAt: now,
		}
		if err := s.audit.Append(ctx, repos, event); err != nil {
			return err
		}
		result.Request = req
		result.Event = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reopenedBy != "" {
		observability.TransitionsTotal.WithLabelValues(string(reopenedBy), string(domain.RequestStatusInReview)).Inc()
	}

	s.publishUpdate(ctx, events.EventRequestUpdated, result.Request, result.Event)
	if asStaff && s.notifier != nil {
		if err := s.notifier.ResponseSent(ctx, result.Request, result.Event); err != nil {
			result.Warnings = append(result.Warnings, warningEmailFailed)
		}
	}
	return &result, nil
}

// CompleteRequest closes a request. Completing an already completed request
// is a Conflict and writes nothing.
func (s *RequestService) CompleteRequest(ctx context.Context, actor domain.Actor, requestID string) (*RequestResult, error) {
	if !domain.CanManage(actor) {
		return nil, apperrors.NewUnauthorized("only staff may complete requests")
	}

	var (
		result RequestResult
		from   domain.RequestStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		req, err := repos.Requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return repoError(err, "request")
		}
		if !domain.CanTransition(req.Status, domain.RequestStatusCompleted) {
			return apperrors.NewConflict("request is already completed")
		}

		now := s.clock.Now()
		from = req.Status
		req.Status = domain.RequestStatusCompleted
		req.UpdatedAt = now
		req.ClosedAt = &now
		if err := repos.Requests.Update(ctx, req); err != nil {
			return repoError(err, "request")
		}

		event := &domain.AuditEvent{
			RequestID: req.ID,
			Kind:      domain.AuditKindClosed,
			ActorID:   &actor.UserID,
			Message:   messageCompleted,
			CreatedAt: now,
		}
		if err := s.audit.Append(ctx, repos, event); err != nil {
			return err
		}
		result.Request = req
		result.Event = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.TransitionsTotal.WithLabelValues(string(from), string(domain.RequestStatusCompleted)).Inc()

	s.logger.Info("request completed", zap.String("radicado", result.Request.Radicado))
	s.publishUpdate(ctx, events.EventRequestCompleted, result.Request, result.Event)
	return &result, nil
}

// GetHistory returns the request timeline as seen by actor, marking what
// others wrote as read.
func (s *RequestService) GetHistory(ctx context.Context, actor domain.Actor, requestID string) (*History, error) {
	if err := s.requireStanding(ctx, actor, requestID); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, requestID, &actor.UserID)
}

// UnreadCount returns how many events of the request actor has not seen.
func (s *RequestService) UnreadCount(ctx context.Context, actor domain.Actor, requestID string) (int64, error) {
	if err := s.requireStanding(ctx, actor, requestID); err != nil {
		return 0, err
	}
	return s.audit.UnreadCount(ctx, requestID, actor.UserID)
}

func (s *RequestService) requireStanding(ctx context.Context, actor domain.Actor, requestID string) error {
	if actor.UserID == "" {
		return apperrors.NewUnauthenticated("authentication required")
	}
	req, err := s.store.Repos().Requests.GetByID(ctx, requestID)
	if err != nil {
		return repoError(err, "request")
	}
	if !domain.CanReply(actor, req) {
		return apperrors.NewUnauthorized("not allowed to read this request")
	}
	return nil
}

func (s *RequestService) publishUpdate(ctx context.Context, eventType events.EventType, req *domain.Request, event *domain.AuditEvent) {
	s.fanout.ToRequest(ctx, req.ID, events.Event{
		Type:      eventType,
		RequestID: req.ID,
		Radicado:  req.Radicado,
		ActorID:   event.ActorID,
		Payload: events.RequestUpdatedPayload{
			Kind:         event.Kind,
			UpdateCode:   event.Radicado,
			Status:       req.Status,
			Message:      event.Message,
			FromAreaID:   event.FromAreaID,
			ToAreaID:     event.ToAreaID,
			AssignedToID: req.AssignedToID,
		},
	})
}

func normalizeContent(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(raw) {
		return nil, apperrors.NewInvalidPayload("content must be valid JSON", nil)
	}
	return raw, nil
}
