// Package handler exposes the voice-task dispatch HTTP endpoint.
package handler

import (
	"incident_portal_backend/internal/dispatch/service"
	"incident_portal_backend/internal/dispatch/transport"
	"incident_portal_backend/platform/httpkit"
	"incident_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler serves voice-task dispatch requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new dispatch handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the dispatch routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
}

// Create dispatches a standalone voice task and returns the provider call id.
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateVoiceTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, 400, "task_type and target_phone are required", err.Error())
		return
	}

	var incidentID *int64
	if req.IncidentID != nil && !req.IncidentID.IsZero() {
		id := req.IncidentID.Int64()
		incidentID = &id
	}

	res, err := h.svc.Dispatch(c.Request.Context(), service.DispatchRequest{
		TaskType:    req.TaskType,
		IncidentID:  incidentID,
		TargetPhone: req.TargetPhone,
		TargetName:  req.TargetName,
		Priority:    req.Priority,
		ScheduledAt: req.ScheduledAt,
		Variables:   req.Variables,
		ContextData: req.ContextData,
		CreatedBy:   req.CreatedBy,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.CreateVoiceTaskResponse{
		TaskID:     res.Task.ID,
		CallID:     res.ProviderCallID,
		CallStatus: res.CallStatus,
	})
}
