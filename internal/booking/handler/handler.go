// Package handler exposes the booking workflow HTTP endpoints.
package handler

import (
	"strconv"

	"incident_portal_backend/internal/booking/service"
	"incident_portal_backend/internal/booking/transport"
	"incident_portal_backend/platform/httpkit"
	"incident_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler serves booking workflow requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new booking handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the workflow routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Start)
	rg.POST("/:id/continue", h.Continue)
}

// RegisterWebhookRoutes mounts the provider webhook routes.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/call-completed", h.CallCompleted)
}

// Start creates a workflow and dials the medical center.
func (h *Handler) Start(c *gin.Context) {
	var req transport.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, 400, "incident_id, medical_center_id and worker_id are required", err.Error())
		return
	}

	res, err := h.svc.Start(c.Request.Context(), service.StartParams{
		IncidentID:       req.IncidentID.Int64(),
		MedicalCenterID:  req.MedicalCenterID.Int64(),
		WorkerID:         req.WorkerID.Int64(),
		DoctorPreference: req.DoctorPreference,
		Urgency:          req.Urgency,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.StartWorkflowResponse{
		WorkflowID: res.Workflow.ID,
		Status:     string(res.Workflow.Status),
		CallID:     res.CallID,
	})
}

// Continue starts the next call leg for an existing workflow.
func (h *Handler) Continue(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpkit.Error(c, 400, "invalid workflow id", err.Error())
		return
	}

	var req transport.ContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "task_type is required", err.Error())
		return
	}

	res, err := h.svc.Continue(c.Request.Context(), id, req.TaskType)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ContinueResponse{
		CallID:      res.CallID,
		Target:      res.Target,
		TargetPhone: res.TargetPhone,
	})
}

// CallCompleted consumes the provider's end-of-call webhook. Stale call ids
// are acknowledged without any state change.
func (h *Handler) CallCompleted(c *gin.Context) {
	var req transport.CallCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "call_id is required", err.Error())
		return
	}

	var workflowID *int64
	if req.WorkflowID != nil && !req.WorkflowID.IsZero() {
		id := req.WorkflowID.Int64()
		workflowID = &id
	}

	err := h.svc.HandleCallCompleted(c.Request.Context(), service.CallCompletedParams{
		CallID:          req.CallID,
		WorkflowID:      workflowID,
		Outcome:         req.Outcome,
		AvailableTimes:  req.Analysis.AvailableTimes,
		ChosenSlotIndex: req.Analysis.ChosenSlotIndex,
		ChosenSlot:      req.Analysis.ChosenSlot,
		PreferredDoctor: req.Analysis.PreferredDoctor,
		CenterConfirmed: req.Analysis.CenterConfirmed,
		FailureReason:   req.Analysis.FailureReason,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"received": true})
}
