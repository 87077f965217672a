package dto

import (
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
	"github.com/spec-kit/pqrs-service/internal/service"
)

// ReportEntryResponse is one row of the unified request listing.
type ReportEntryResponse struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Radicado  string               `json:"radicado"`
	Subject   string               `json:"subject"`
	Status    domain.RequestStatus `json:"status"`
	EntityID  string               `json:"entity_id"`
	Deadline  time.Time            `json:"deadline"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// ReportPageResponse wraps a page of the unified listing.
type ReportPageResponse struct {
	Data      []ReportEntryResponse `json:"data"`
	Total     int64                 `json:"total"`
	Page      int                   `json:"page"`
	PageCount int                   `json:"pageCount"`
	Limit     int                   `json:"limit"`
}

// KPIResponse carries the dashboard headline figures.
type KPIResponse struct {
	TotalRequests    int64   `json:"totalRequests"`
	ResolvedRequests int64   `json:"resolvedRequests"`
	AvgResponseTime  float64 `json:"avgResponseTime"`
	ActiveUsers      int64   `json:"activeUsers"`
}

// AreaCountResponse is one bar of the area chart.
type AreaCountResponse struct {
	AreaID   string `json:"area_id"`
	Area     string `json:"area"`
	Requests int64  `json:"requests"`
}

// StatusCountResponse is one slice of the status chart.
type StatusCountResponse struct {
	Status domain.RequestStatus `json:"status"`
	Name   string               `json:"name"`
	Value  int64                `json:"value"`
}

// DayCountResponse is one point of the trend line.
type DayCountResponse struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// NewReportPageResponse maps a service report page.
func NewReportPageResponse(page *service.ReportPage) ReportPageResponse {
	items := make([]ReportEntryResponse, 0, len(page.Entries))
	for _, e := range page.Entries {
		items = append(items, ReportEntryResponse{
			ID:        e.ID,
			Type:      e.Kind,
			Radicado:  e.Radicado,
			Subject:   e.Subject,
			Status:    e.Status,
			EntityID:  e.EntityID,
			Deadline:  e.Deadline,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return ReportPageResponse{
		Data:      items,
		Total:     page.Total,
		Page:      page.Page,
		PageCount: page.PageCount,
		Limit:     page.Limit,
	}
}

// NewKPIResponse maps entity KPIs.
func NewKPIResponse(k *service.EntityKPIs) KPIResponse {
	return KPIResponse{
		TotalRequests:    k.TotalRequests,
		ResolvedRequests: k.ResolvedRequests,
		AvgResponseTime:  k.AvgResponseDays,
		ActiveUsers:      k.ActiveUsers,
	}
}

// NewAreaCountResponses maps per-area counts.
func NewAreaCountResponses(counts []repository.AreaCount) []AreaCountResponse {
	out := make([]AreaCountResponse, 0, len(counts))
	for _, c := range counts {
		out = append(out, AreaCountResponse{AreaID: c.AreaID, Area: c.AreaName, Requests: c.Count})
	}
	return out
}

// NewStatusCountResponses maps the status breakdown.
func NewStatusCountResponses(counts []service.StatusCount) []StatusCountResponse {
	out := make([]StatusCountResponse, 0, len(counts))
	for _, c := range counts {
		out = append(out, StatusCountResponse{Status: c.Status, Name: c.Label, Value: c.Value})
	}
	return out
}

// NewDayCountResponses maps the trend series.
func NewDayCountResponses(days []service.DayCount) []DayCountResponse {
	out := make([]DayCountResponse, 0, len(days))
	for _, d := range days {
		out = append(out, DayCountResponse{Date: d.Date, Count: d.Count})
	}
	return out
}
