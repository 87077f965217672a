package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/pqrs-service/internal/api/dto"
	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/service"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// ExternalRequestsHandler manages outbound requests filed by staff.
type ExternalRequestsHandler struct {
	service   *service.ExternalRequestService
	validator *dto.Validator
}

// NewExternalRequestsHandler constructs handler.
func NewExternalRequestsHandler(svc *service.ExternalRequestService, validator *dto.Validator) *ExternalRequestsHandler {
	if validator == nil {
		validator = dto.NewValidator()
	}
	return &ExternalRequestsHandler{service: svc, validator: validator}
}

// Create POST /external-requests.
func (h *ExternalRequestsHandler) Create(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateExternalRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidPayload("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return err
	}

	created, err := h.service.CreateExternalRequest(c.UserContext(), actor, service.CreateExternalRequestInput{
		TypeRequest:     req.TypeRequest,
		Recipient:       req.Recipient,
		MailRecipient:   req.MailRecipient,
		MaxResponseDays: req.MaxResponseDays,
		Subject:         req.Subject,
		Content:         req.Content,
		EntityID:        req.EntityID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewExternalRequestResponse(created)})
}

// List GET /external-requests.
func (h *ExternalRequestsHandler) List(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	entityID := c.Query("entity_id")
	if entityID != "" && uuid.Validate(entityID) != nil {
		return apperrors.NewInvalidPayload("entity_id must be a UUID", map[string]any{"entity_id": entityID})
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	reqs, err := h.service.ListExternalRequests(c.UserContext(), actor, entityID, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.ExternalRequestResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, dto.NewExternalRequestResponse(&reqs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /external-requests/:id.
func (h *ExternalRequestsHandler) Get(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "external request")
	if err != nil {
		return err
	}
	found, err := h.service.GetExternalRequest(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewExternalRequestResponse(found)})
}

// Complete PATCH /external-requests/:id/complete.
func (h *ExternalRequestsHandler) Complete(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "external request")
	if err != nil {
		return err
	}
	updated, err := h.service.CompleteExternalRequest(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewExternalRequestResponse(updated)})
}
