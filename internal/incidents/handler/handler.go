// Package handler exposes the incident intake HTTP endpoints.
package handler

import (
	"incident_portal_backend/internal/incidents/service"
	"incident_portal_backend/internal/incidents/transport"
	"incident_portal_backend/platform/httpkit"
	"incident_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler serves incident intake requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new intake handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the intake routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/staging", h.SubmitStaging)
	rg.POST("/inbound", h.FinalizeInbound)
}

// SubmitStaging accepts a mid-call partial submission. The payload shape
// varies by caller so it is bound as a raw object and picked apart in the
// service layer.
func (h *Handler) SubmitStaging(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}

	confirmation, err := h.svc.SubmitStaging(c.Request.Context(), body)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.StagingResponse{Confirmation: confirmation})
}

// FinalizeInbound merges staged data with the final extraction and creates
// the incident.
func (h *Handler) FinalizeInbound(c *gin.Context) {
	var req transport.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, 400, "call_id is required", err.Error())
		return
	}

	result, err := h.svc.FinalizeInbound(c.Request.Context(), service.FinalizeParams{
		CallID:        req.CallID,
		ExtractedData: req.ExtractedData,
		Transcript:    req.Transcript,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FinalizeResponse{
		IncidentID:     result.IncidentID,
		IncidentNumber: result.IncidentNumber,
		WorkerID:       result.WorkerID,
		NeedsReview:    result.NeedsReview,
		AlreadyExisted: result.AlreadyExisted,
	})
}
