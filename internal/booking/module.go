// Package booking provides the appointment booking workflow module.
package booking

import (
	"incident_portal_backend/internal/booking/handler"
	"incident_portal_backend/internal/booking/repository"
	"incident_portal_backend/internal/booking/service"
	"incident_portal_backend/internal/events"
	"incident_portal_backend/internal/http"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the booking domain module
type Module struct {
	handler    *handler.Handler
	service    *service.Service
	repository *repository.Repository
}

// NewModule creates a new booking module with all dependencies wired
func NewModule(pool *pgxpool.Pool, dispatcher service.Dispatcher, calls service.CallLog, cfg config.BookingConfig, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, dispatcher, calls, cfg, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler:    h,
		service:    svc,
		repository: repo,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "booking"
}

// Service exposes the workflow orchestrator for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes the workflow store. It satisfies the dispatcher's
// WorkflowMarker contract.
func (m *Module) Repository() *repository.Repository {
	return m.repository
}

// RegisterRoutes registers the module's routes under /workflows and the
// provider webhook under /webhooks.
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	workflows := ctx.V1.Group("/workflows")
	m.handler.RegisterRoutes(workflows)

	webhooks := ctx.Tools.Group("/webhooks")
	m.handler.RegisterWebhookRoutes(webhooks)
}

// Compile-time check that Module implements http.Module
var _ http.Module = (*Module)(nil)
