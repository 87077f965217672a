package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pqrs-service/internal/api/dto"
	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/service"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util/errorutil"
)

// ReportsHandler serves the staff report listing and the admin dashboard.
type ReportsHandler struct {
	reports *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

// Search GET /requests/reportes.
func (h *ReportsHandler) Search(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	page, err := h.reports.SearchUnified(c.UserContext(), actor, service.ReportQuery{
		Radicado: c.Query("radicado"),
		Subject:  c.Query("subject"),
		Status:   c.Query("status"),
		Kind:     c.Query("type"),
		Page:     parseInt(c.Query("page"), 1),
		Limit:    parseInt(c.Query("limit"), 10),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewReportPageResponse(page))
}

// KPIs GET /analytics/kpis.
func (h *ReportsHandler) KPIs(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	window, err := parseDateRange(c, "startDate", "endDate")
	if err != nil {
		return err
	}
	kpis, err := h.reports.EntityKPIs(c.UserContext(), actor, window)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewKPIResponse(kpis)})
}

// AreaChart GET /analytics/area-chart.
func (h *ReportsHandler) AreaChart(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	counts, err := h.reports.RequestsByArea(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAreaCountResponses(counts)})
}

// ByStatus GET /analytics/requests-by-status.
func (h *ReportsHandler) ByStatus(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	counts, err := h.reports.RequestsByStatus(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatusCountResponses(counts)})
}

// Latest GET /analytics/latest-requests.
func (h *ReportsHandler) Latest(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	reqs, err := h.reports.LatestActivity(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestList(reqs)})
}

// Trend GET /analytics/requests-trend.
func (h *ReportsHandler) Trend(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	window, err := parseDateRange(c, "from", "to")
	if err != nil {
		return err
	}
	days, err := h.reports.RequestsTrend(c.UserContext(), actor, window)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDayCountResponses(days)})
}

func parseDateRange(c *fiber.Ctx, fromKey, toKey string) (service.DateRange, error) {
	from, err := parseDateQuery(c, fromKey)
	if err != nil {
		return service.DateRange{}, err
	}
	to, err := parseDateQuery(c, toKey)
	if err != nil {
		return service.DateRange{}, err
	}
	return service.DateRange{From: from, To: to}, nil
}

// parseDateQuery accepts RFC 3339 timestamps or bare dates, which read as UTC midnight.
func parseDateQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.NewInvalidPayload("invalid date", map[string]any{key: raw})
}
