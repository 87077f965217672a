package events

import (
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// EventType enumerates supported real-time event identifiers.
type EventType string

const (
	EventRequestCreated   EventType = "request.created"
	EventRequestUpdated   EventType = "request.updated"
	EventRequestDerived   EventType = "request.derived"
	EventRequestCompleted EventType = "request.completed"
	EventRequestOverdue   EventType = "request.overdue"
	EventStatusCounts     EventType = "request.status_counts"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Radicado  string    `json:"radicado,omitempty"`
	ActorID   *string   `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	Subject      string               `json:"subject"`
	Status       domain.RequestStatus `json:"status"`
	ProcedureID  string               `json:"procedure_id"`
	AreaID       *string              `json:"area_id,omitempty"`
	AssignedToID *string              `json:"assigned_to_id,omitempty"`
	Deadline     time.Time            `json:"deadline"`
}

// RequestUpdatedPayload carries the audit entry that changed a request.
type RequestUpdatedPayload struct {
	Kind         domain.AuditKind     `json:"kind"`
	UpdateCode   string               `json:"update_code"`
	Status       domain.RequestStatus `json:"status"`
	Message      string               `json:"message,omitempty"`
	FromAreaID   *string              `json:"from_area_id,omitempty"`
	ToAreaID     *string              `json:"to_area_id,omitempty"`
	AssignedToID *string              `json:"assigned_to_id,omitempty"`
}

// StatusCountsPayload is the badge update pushed to a user topic.
type StatusCountsPayload struct {
	Scope  string                         `json:"scope"`
	Counts map[domain.RequestStatus]int64 `json:"counts"`
}
