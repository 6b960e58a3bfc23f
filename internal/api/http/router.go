package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Staff          *handlers.StaffHandler
	Tickets        *handlers.TicketsHandler
	Threads        *handlers.StaffTicketsHandler
	Automation     *handlers.AutomationHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	app.Post("/auth/staff/login", cfg.Staff.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Patch("/", cfg.Tickets.EditMultiple)
	tickets.Delete("/", cfg.Tickets.DeleteTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.EditTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Get("/:id/replies", cfg.Threads.ListReplies)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)
	tickets.Post("/:id/merge", cfg.Threads.MergeTickets)
	tickets.Post("/:id/split", cfg.Threads.SplitTicket)

	departments := app.Group("/departments", cfg.AuthMiddleware.Handle)
	departments.Post("/:id/automation", cfg.Automation.RunDepartment)
}
