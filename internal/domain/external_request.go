package domain

import (
	"encoding/json"
	"time"
)

// ExternalRequest is an outbound request filed by staff to a third party.
type ExternalRequest struct {
	ID              string
	Radicado        string
	TypeRequest     string
	Recipient       string
	MailRecipient   string
	MaxResponseDays int
	Subject         string
	Content         json.RawMessage
	Status          RequestStatus
	EntityID        string
	UserID          string
	Deadline        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
