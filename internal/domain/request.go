package domain

import (
	"encoding/json"
	"time"
)

// RequestStatus enumerates lifecycle states for citizen requests.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusInReview  RequestStatus = "IN_REVIEW"
	RequestStatusCompleted RequestStatus = "COMPLETED"
	RequestStatusOverdue   RequestStatus = "OVERDUE"
)

// AllRequestStatuses lists every status in display order.
var AllRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusInReview,
	RequestStatusCompleted,
	RequestStatusOverdue,
}

// OpenStatuses are the statuses the overdue sweep inspects.
var OpenStatuses = []RequestStatus{RequestStatusPending, RequestStatusInReview}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	for _, candidate := range AllRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted
}

// Request is the aggregate for a citizen-submitted PQRS.
type Request struct {
	ID            string
	Radicado      string
	Subject       string
	Content       json.RawMessage
	Status        RequestStatus
	ProcedureID   string
	EntityID      string
	CitizenID     string
	AssignedToID  *string
	CurrentAreaID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Deadline      time.Time
	ClosedAt      *time.Time
}

// IsAssignedTo reports whether userID is the current assignee.
func (r *Request) IsAssignedTo(userID string) bool {
	return r.AssignedToID != nil && *r.AssignedToID == userID
}

var allowedTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:   {RequestStatusInReview, RequestStatusCompleted, RequestStatusOverdue},
	RequestStatusInReview:  {RequestStatusCompleted, RequestStatusOverdue},
	RequestStatusOverdue:   {RequestStatusInReview, RequestStatusCompleted},
	RequestStatusCompleted: {},
}

// CanTransition reports whether current may move to next.
func CanTransition(current, next RequestStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
