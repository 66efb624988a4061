// Package dispatch provides the outbound call dispatch module.
package dispatch

import (
	"incident_portal_backend/internal/dispatch/handler"
	"incident_portal_backend/internal/dispatch/repository"
	"incident_portal_backend/internal/dispatch/service"
	"incident_portal_backend/internal/events"
	"incident_portal_backend/internal/http"
	"incident_portal_backend/internal/telephony"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/phone"
	"incident_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the dispatch domain module
type Module struct {
	handler    *handler.Handler
	service    *service.Service
	repository *repository.Repository
}

// NewModule creates a new dispatch module with all dependencies wired
func NewModule(pool *pgxpool.Pool, provider telephony.CallProvider, phones *phone.Normalizer, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, provider, phones, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler:    h,
		service:    svc,
		repository: repo,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "dispatch"
}

// Service exposes the dispatcher for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes the task store for cross-module wiring.
func (m *Module) Repository() *repository.Repository {
	return m.repository
}

// SetWorkflowMarker attaches the booking workflow store. Called by the
// composition root after the booking module is constructed.
func (m *Module) SetWorkflowMarker(marker service.WorkflowMarker) {
	m.service.SetWorkflowMarker(marker)
}

// RegisterRoutes registers the module's routes under /voice-tasks
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	tasks := ctx.V1.Group("/voice-tasks")
	m.handler.RegisterRoutes(tasks)
}

// Compile-time check that Module implements http.Module
var _ http.Module = (*Module)(nil)
