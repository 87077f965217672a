package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// CreateExternalRequestRequest payload.
type CreateExternalRequestRequest struct {
	TypeRequest     string          `json:"type_request" validate:"required"`
	Recipient       string          `json:"recipient" validate:"required"`
	MailRecipient   string          `json:"mail_recipient" validate:"omitempty,email"`
	MaxResponseDays int             `json:"max_response_days" validate:"gte=0"`
	Subject         string          `json:"subject" validate:"required,max=500"`
	Content         json.RawMessage `json:"content"`
	EntityID        string          `json:"entity_id" validate:"required,uuid"`
}

// ExternalRequestResponse is the wire form of an outbound request.
type ExternalRequestResponse struct {
	ID              string               `json:"id"`
	Radicado        string               `json:"radicado"`
	TypeRequest     string               `json:"type_request"`
	Recipient       string               `json:"recipient"`
	MailRecipient   string               `json:"mail_recipient,omitempty"`
	MaxResponseDays int                  `json:"max_response_days"`
	Subject         string               `json:"subject"`
	Content         json.RawMessage      `json:"content"`
	Status          domain.RequestStatus `json:"status"`
	EntityID        string               `json:"entity_id"`
	UserID          string               `json:"user_id"`
	Deadline        time.Time            `json:"deadline"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// NewExternalRequestResponse maps a domain external request.
func NewExternalRequestResponse(req *domain.ExternalRequest) ExternalRequestResponse {
	return ExternalRequestResponse{
		ID:              req.ID,
		Radicado:        req.Radicado,
		TypeRequest:     req.TypeRequest,
		Recipient:       req.Recipient,
		MailRecipient:   req.MailRecipient,
		MaxResponseDays: req.MaxResponseDays,
		Subject:         req.Subject,
		Content:         req.Content,
		Status:          req.Status,
		EntityID:        req.EntityID,
		UserID:          req.UserID,
		Deadline:        req.Deadline,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
}
