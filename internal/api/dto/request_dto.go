package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	ProcedureID string          `json:"procedure_id" validate:"required,uuid"`
	Subject     string          `json:"subject" validate:"required,max=500"`
	Content     json.RawMessage `json:"content"`
}

// DeriveRequestRequest payload.
type DeriveRequestRequest struct {
	AreaID  string `json:"area_id" validate:"required,uuid"`
	Message string `json:"message" validate:"max=2000"`
}

// ReplyRequest payload. Either message or data must be present.
type ReplyRequest struct {
	Message string          `json:"message" validate:"required_without=Data,max=5000"`
	Data    json.RawMessage `json:"data"`
}

// RequestResponse is the wire form of a request.
type RequestResponse struct {
	ID            string               `json:"id"`
	Radicado      string               `json:"radicado"`
	Subject       string               `json:"subject"`
	Content       json.RawMessage      `json:"content"`
	Status        domain.RequestStatus `json:"status"`
	ProcedureID   string               `json:"procedure_id"`
	EntityID      string               `json:"entity_id"`
	CitizenID     string               `json:"citizen_id"`
	AssignedToID  *string              `json:"assigned_to_id"`
	CurrentAreaID *string              `json:"current_area_id"`
	Deadline      time.Time            `json:"deadline"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	ClosedAt      *time.Time           `json:"closed_at"`
}

// AuditEventResponse is one history entry.
type AuditEventResponse struct {
	ID         string           `json:"id,omitempty"`
	Radicado   string           `json:"radicado"`
	Kind       domain.AuditKind `json:"kind"`
	ActorID    *string          `json:"actor_id"`
	FromAreaID *string          `json:"from_area_id,omitempty"`
	ToAreaID   *string          `json:"to_area_id,omitempty"`
	ToUserID   *string          `json:"to_user_id,omitempty"`
	Message    string           `json:"message"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	IsRead     bool             `json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}

// MutationResponse wraps the result of a lifecycle operation.
type MutationResponse struct {
	Request  RequestResponse     `json:"request"`
	Event    *AuditEventResponse `json:"event,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// HistoryResponse is a reader's timeline.
type HistoryResponse struct {
	Events     []AuditEventResponse `json:"events"`
	MarkedRead int64                `json:"marked_read"`
}

// NewRequestResponse maps a domain request.
func NewRequestResponse(req *domain.Request) RequestResponse {
	return RequestResponse{
		ID:            req.ID,
		Radicado:      req.Radicado,
		Subject:       req.Subject,
		Content:       req.Content,
		Status:        req.Status,
		ProcedureID:   req.ProcedureID,
		EntityID:      req.EntityID,
		CitizenID:     req.CitizenID,
		AssignedToID:  req.AssignedToID,
		CurrentAreaID: req.CurrentAreaID,
		Deadline:      req.Deadline,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
		ClosedAt:      req.ClosedAt,
	}
}

// NewAuditEventResponse maps a domain audit event.
func NewAuditEventResponse(event *domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:         event.ID,
		Radicado:   event.Radicado,
		Kind:       event.Kind,
		ActorID:    event.ActorID,
		FromAreaID: event.FromAreaID,
		ToAreaID:   event.ToAreaID,
		ToUserID:   event.ToUserID,
		Message:    event.Message,
		Payload:    event.Payload,
		IsRead:     event.IsRead,
		CreatedAt:  event.CreatedAt,
	}
}
