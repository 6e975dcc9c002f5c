package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Events   *handlers.EventsHandler
	Settings *handlers.SettingsHandler
	Admin    *handlers.AdminHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	eventsGroup := app.Group("/events")
	eventsGroup.Post("/ticket-changed", cfg.Events.TicketChanged)
	eventsGroup.Post("/ticket-closed", cfg.Events.TicketClosed)
	eventsGroup.Post("/contract-sla-override", cfg.Events.ContractOverride)

	settingsGroup := app.Group("/settings")
	settingsGroup.Post("/rules/validate", cfg.Settings.ValidateRule)
	settingsGroup.Post("/calendars/validate", cfg.Settings.ValidateCalendar)

	adminGroup := app.Group("/admin")
	adminGroup.Get("/configuration-flags", cfg.Admin.ListFlags)
	adminGroup.Post("/configuration-flags/:id/resolve", cfg.Admin.ResolveFlag)
}
