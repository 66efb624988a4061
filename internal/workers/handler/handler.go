// Package handler exposes the worker lookup HTTP endpoint.
package handler

import (
	"incident_portal_backend/internal/workers/service"
	"incident_portal_backend/internal/workers/transport"
	"incident_portal_backend/platform/httpkit"
	"incident_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler serves worker identity lookups.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new workers handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the worker routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/lookup", h.Lookup)
}

// Lookup resolves a spoken worker name to a registry entry.
func (h *Handler) Lookup(c *gin.Context) {
	var req transport.LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "worker_name is required", err.Error())
		return
	}

	var employerID *int64
	if req.EmployerID != nil && !req.EmployerID.IsZero() {
		id := req.EmployerID.Int64()
		employerID = &id
	}

	verdict, err := h.svc.Resolve(c.Request.Context(), req.WorkerName, employerID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromVerdict(verdict))
}
