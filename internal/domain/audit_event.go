package domain

import (
	"encoding/json"
	"time"
)

// AuditKind identifies the lifecycle action recorded by an audit event.
type AuditKind string

const (
	AuditKindAssigned  AuditKind = "ASSIGNED"
	AuditKindDerived   AuditKind = "DERIVED"
	AuditKindResponse  AuditKind = "RESPONSE"
	AuditKindUserReply AuditKind = "USER_REPLY"
	AuditKindClosed    AuditKind = "CLOSED"
	AuditKindOverdue   AuditKind = "OVERDUE"

	// AuditKindOriginal marks the synthetic history entry carrying the request itself.
	// It is never stored.
	AuditKindOriginal AuditKind = "ORIGINAL"
)

// AuditEvent is an immutable, append-only lifecycle entry for a request.
type AuditEvent struct {
	ID         string
	Seq        int64
	RequestID  string
	Radicado   string
	Kind       AuditKind
	ActorID    *string
	FromAreaID *string
	ToAreaID   *string
	ToUserID   *string
	Message    string
	Payload    json.RawMessage
	IsRead     bool
	CreatedAt  time.Time
}

// AuthoredBy reports whether userID wrote the event. System events have no author.
func (e *AuditEvent) AuthoredBy(userID string) bool {
	return e.ActorID != nil && *e.ActorID == userID
}
