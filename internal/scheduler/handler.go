package scheduler

import (
	"incident_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler exposes the retry pass over HTTP for cron-style triggers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new scheduler handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the retry routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/patient", h.RunPatientRetries)
}

// RunPatientRetries executes one retry pass and returns its summary.
func (h *Handler) RunPatientRetries(c *gin.Context) {
	summary, err := h.svc.RunPatientRetryPass(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}
