package scheduler

import (
	"incident_portal_backend/internal/http"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"
)

// Module represents the retry scheduler module
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates a new scheduler module with all dependencies wired
func NewModule(booking BookingQueue, cfg config.SchedulerConfig, log *logger.Logger) (*Module, error) {
	svc, err := New(booking, cfg, log)
	if err != nil {
		return nil, err
	}
	return &Module{
		handler: NewHandler(svc),
		service: svc,
	}, nil
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "scheduler"
}

// Service exposes the pass runner for the asynq worker.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes registers the module's routes under /retries
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	retries := ctx.Tools.Group("/retries")
	m.handler.RegisterRoutes(retries)
}

// Compile-time check that Module implements http.Module
var _ http.Module = (*Module)(nil)
