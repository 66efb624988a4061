// Package transport defines the wire DTOs for the booking endpoints.
package transport

import (
	"incident_portal_backend/internal/booking/domain"
	"incident_portal_backend/internal/shared/jsonx"
)

// StartWorkflowRequest creates a booking workflow and dials the medical
// center.
type StartWorkflowRequest struct {
	IncidentID       jsonx.FlexID `json:"incident_id" validate:"required"`
	MedicalCenterID  jsonx.FlexID `json:"medical_center_id" validate:"required"`
	WorkerID         jsonx.FlexID `json:"worker_id" validate:"required"`
	DoctorPreference string       `json:"doctor_preference"`
	Urgency          string       `json:"urgency" validate:"omitempty,oneof=normal urgent"`
}

// StartWorkflowResponse acknowledges the created workflow and its first leg.
type StartWorkflowResponse struct {
	WorkflowID int64  `json:"workflow_id"`
	Status     string `json:"status"`
	CallID     string `json:"call_id"`
}

// ContinueRequest starts the next call leg for an existing workflow.
type ContinueRequest struct {
	TaskType string `json:"task_type" validate:"required"`
}

// ContinueResponse describes the leg that was started.
type ContinueResponse struct {
	CallID      string `json:"call_id"`
	Target      string `json:"target"`
	TargetPhone string `json:"target_phone"`
}

// CallAnalysis carries the provider's post-call extraction.
type CallAnalysis struct {
	AvailableTimes  []domain.TimeSlot `json:"available_times"`
	ChosenSlotIndex *int              `json:"chosen_slot_index"`
	ChosenSlot      *domain.TimeSlot  `json:"chosen_slot"`
	PreferredDoctor string            `json:"preferred_doctor"`
	CenterConfirmed *bool             `json:"center_confirmed"`
	FailureReason   string            `json:"failure_reason"`
}

// CallCompletedRequest is the provider webhook for a finished call.
type CallCompletedRequest struct {
	CallID     string        `json:"call_id" validate:"required"`
	WorkflowID *jsonx.FlexID `json:"workflow_id"`
	Outcome    string        `json:"outcome"`
	Analysis   CallAnalysis  `json:"analysis"`
}
