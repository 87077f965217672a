package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/pqrs-service/internal/api/dto"
	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/service"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// RequestsHandler exposes the citizen request lifecycle.
type RequestsHandler struct {
	requests  *service.RequestService
	inbox     *service.InboxService
	validator *dto.Validator
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requests *service.RequestService, inbox *service.InboxService, validator *dto.Validator) *RequestsHandler {
	if validator == nil {
		validator = dto.NewValidator()
	}
	return &RequestsHandler{requests: requests, inbox: inbox, validator: validator}
}

// CreateRequest POST /requests.
func (h *RequestsHandler) CreateRequest(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidPayload("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return err
	}

	result, err := h.requests.CreateRequest(c.UserContext(), actor, service.CreateRequestInput{
		ProcedureID: req.ProcedureID,
		Subject:     req.Subject,
		Content:     req.Content,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": mutationResponse(result)})
}

// DeriveRequest PATCH /requests/:id/assign-area.
func (h *RequestsHandler) DeriveRequest(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "request")
	if err != nil {
		return err
	}
	var req dto.DeriveRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidPayload("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return err
	}

	result, err := h.requests.DeriveRequest(c.UserContext(), actor, id, service.DeriveRequestInput{
		ToAreaID: req.AreaID,
		Message:  req.Message,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mutationResponse(result)})
}

// Reply POST /requests/:id/reply.
func (h *RequestsHandler) Reply(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "request")
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidPayload("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return err
	}

	result, err := h.requests.ReplyToRequest(c.UserContext(), actor, id, service.ReplyInput{
		Message: req.Message,
		Payload: req.Data,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": mutationResponse(result)})
}

// Complete PATCH /requests/:id/complete.
func (h *RequestsHandler) Complete(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "request")
	if err != nil {
		return err
	}
	result, err := h.requests.CompleteRequest(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mutationResponse(result)})
}

// History GET /requests/:id/history. Reading marks the caller's unseen events as read.
func (h *RequestsHandler) History(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "request")
	if err != nil {
		return err
	}
	history, err := h.requests.GetHistory(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	items := make([]dto.AuditEventResponse, 0, len(history.Events))
	for i := range history.Events {
		items = append(items, dto.NewAuditEventResponse(&history.Events[i]))
	}
	return c.JSON(fiber.Map{"data": dto.HistoryResponse{Events: items, MarkedRead: history.MarkedRead}})
}

// Unread GET /requests/:id/unread.
func (h *RequestsHandler) Unread(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "request")
	if err != nil {
		return err
	}
	count, err := h.requests.UnreadCount(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"unread": count}})
}

// MyAssigned GET /requests/my-assigned.
func (h *RequestsHandler) MyAssigned(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	reqs, err := h.inbox.ListAssigned(c.UserContext(), actor, parseListQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestList(reqs)})
}

// MyAssignedCounts GET /requests/my-assigned/count-by-status.
func (h *RequestsHandler) MyAssignedCounts(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	counts, err := h.inbox.CountAssignedByStatus(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": counts})
}

// MyRequests GET /requests/my-requests.
func (h *RequestsHandler) MyRequests(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	reqs, err := h.inbox.ListCitizenRequests(c.UserContext(), actor, parseListQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestList(reqs)})
}

// MyRequestsCounts GET /requests/my-requests/count-by-status.
func (h *RequestsHandler) MyRequestsCounts(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	counts, err := h.inbox.CountCitizenRequestsByStatus(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": counts})
}

// pathID returns the :id route parameter in canonical UUID form. Values that
// are not UUIDs cannot name a stored row and report resource as not found.
func pathID(c *fiber.Ctx, resource string) (string, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", apperrors.NewNotFound(resource)
	}
	return id.String(), nil
}

func parseListQuery(c *fiber.Ctx) service.ListFilter {
	filter := service.ListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.RequestStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func requestList(reqs []domain.Request) []dto.RequestResponse {
	items := make([]dto.RequestResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, dto.NewRequestResponse(&reqs[i]))
	}
	return items
}

func mutationResponse(result *service.RequestResult) dto.MutationResponse {
	resp := dto.MutationResponse{
		Request:  dto.NewRequestResponse(result.Request),
		Warnings: result.Warnings,
	}
	if result.Event != nil {
		event := dto.NewAuditEventResponse(result.Event)
		resp.Event = &event
	}
	return resp
}
