package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/pqrs-service/internal/api/http/handlers"
	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health           *handlers.HealthHandler
	Requests         *handlers.RequestsHandler
	ExternalRequests *handlers.ExternalRequestsHandler
	Reports          *handlers.ReportsHandler
	AuthMiddleware   *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	requests := app.Group("/requests", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	requests.Post("/", auth.RequireCitizen(), cfg.Requests.CreateRequest)
	requests.Get("/my-requests", cfg.Requests.MyRequests)
	requests.Get("/my-requests/count-by-status", cfg.Requests.MyRequestsCounts)
	requests.Get("/my-assigned", auth.RequireStaffRole(), cfg.Requests.MyAssigned)
	requests.Get("/my-assigned/count-by-status", auth.RequireStaffRole(), cfg.Requests.MyAssignedCounts)
	requests.Get("/reportes", auth.RequireStaffRole(), cfg.Reports.Search)
	requests.Patch("/:id/assign-area", auth.RequireStaffRole(), cfg.Requests.DeriveRequest)
	requests.Post("/:id/reply", cfg.Requests.Reply)
	requests.Patch("/:id/complete", auth.RequireStaffRole(), cfg.Requests.Complete)
	requests.Get("/:id/history", cfg.Requests.History)
	requests.Get("/:id/unread", cfg.Requests.Unread)

	external := app.Group("/external-requests", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	external.Post("/", cfg.ExternalRequests.Create)
	external.Get("/", cfg.ExternalRequests.List)
	external.Get("/:id", cfg.ExternalRequests.Get)
	external.Patch("/:id/complete", cfg.ExternalRequests.Complete)

	analytics := app.Group("/analytics", cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.RoleAdmin, domain.RoleSuper))
	analytics.Get("/kpis", cfg.Reports.KPIs)
	analytics.Get("/area-chart", cfg.Reports.AreaChart)
	analytics.Get("/requests-by-status", cfg.Reports.ByStatus)
	analytics.Get("/latest-requests", cfg.Reports.Latest)
	analytics.Get("/requests-trend", cfg.Reports.Trend)
}
