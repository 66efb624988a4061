// Package incidents provides the inbound incident intake module.
package incidents

import (
	"incident_portal_backend/internal/events"
	"incident_portal_backend/internal/http"
	"incident_portal_backend/internal/incidents/handler"
	"incident_portal_backend/internal/incidents/repository"
	"incident_portal_backend/internal/incidents/service"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/dedup"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/phone"
	"incident_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the incident intake domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new incidents module with all dependencies wired.
// followUps may be nil when no scheduler backend is configured.
func NewModule(pool *pgxpool.Pool, workers service.WorkerDirectory, phones *phone.Normalizer, deduper *dedup.Deduper, followUps service.FollowUpScheduler, bus events.Bus, cfg config.IntakeConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, workers, phones, deduper, followUps, bus, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "incidents"
}

// Service exposes the intake service for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes under the tool surface
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	intake := ctx.Tools.Group("/incidents")
	m.handler.RegisterRoutes(intake)
}

// Compile-time check that Module implements http.Module
var _ http.Module = (*Module)(nil)
