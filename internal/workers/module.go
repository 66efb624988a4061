// Package workers provides the worker registry and identity resolution module.
package workers

import (
	"incident_portal_backend/internal/http"
	"incident_portal_backend/internal/workers/handler"
	"incident_portal_backend/internal/workers/repository"
	"incident_portal_backend/internal/workers/service"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the workers domain module
type Module struct {
	handler    *handler.Handler
	service    *service.Service
	repository *repository.Repository
}

// NewModule creates a new workers module with all dependencies wired
func NewModule(pool *pgxpool.Pool, cfg config.MatchConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler:    h,
		service:    svc,
		repository: repo,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "workers"
}

// Service exposes the resolver for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes the worker registry for cross-module wiring.
func (m *Module) Repository() *repository.Repository {
	return m.repository
}

// RegisterRoutes registers the module's routes under /workers
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	workers := ctx.Tools.Group("/workers")
	m.handler.RegisterRoutes(workers)
}

// Compile-time check that Module implements http.Module
var _ http.Module = (*Module)(nil)
