// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"incident_portal_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Call Dispatch Events
// =============================================================================

// CallDispatched is published after a voice call is successfully placed with
// the provider.
type CallDispatched struct {
	BaseEvent
	IncidentID     int64  `json:"incidentId"`
	WorkflowID     int64  `json:"workflowId,omitempty"`
	VoiceTaskID    int64  `json:"voiceTaskId"`
	ProviderCallID string `json:"providerCallId"`
	TaskType       string `json:"taskType"`
	CallSequence   int    `json:"callSequence"`
	TargetName     string `json:"targetName"`
	TargetPhone    string `json:"targetPhone"`
	CreatedBy      string `json:"createdBy"`
}

func (e CallDispatched) EventName() string { return "dispatch.call.placed" }

// CallDispatchFailed is published when the provider rejects or times out on a
// call placement.
type CallDispatchFailed struct {
	BaseEvent
	IncidentID  int64  `json:"incidentId"`
	WorkflowID  int64  `json:"workflowId,omitempty"`
	VoiceTaskID int64  `json:"voiceTaskId"`
	TaskType    string `json:"taskType"`
	Reason      string `json:"reason"`
}

func (e CallDispatchFailed) EventName() string { return "dispatch.call.failed" }

// =============================================================================
// Booking Workflow Events
// =============================================================================

// WorkflowCompleted is published when a booking workflow reaches its
// confirmed terminal state.
type WorkflowCompleted struct {
	BaseEvent
	WorkflowID    int64  `json:"workflowId"`
	IncidentID    int64  `json:"incidentId"`
	ConfirmedSlot string `json:"confirmedSlot"`
}

func (e WorkflowCompleted) EventName() string { return "booking.workflow.completed" }

// WorkflowFailed is published when a booking workflow reaches the failed
// terminal state.
type WorkflowFailed struct {
	BaseEvent
	WorkflowID int64  `json:"workflowId"`
	IncidentID int64  `json:"incidentId"`
	Reason     string `json:"reason"`
}

func (e WorkflowFailed) EventName() string { return "booking.workflow.failed" }

// =============================================================================
// Incident Intake Events
// =============================================================================

// IncidentCreated is published when inbound intake finalizes an incident.
type IncidentCreated struct {
	BaseEvent
	IncidentID     int64  `json:"incidentId"`
	IncidentNumber string `json:"incidentNumber"`
	WorkerID       int64  `json:"workerId,omitempty"`
	EmployerID     int64  `json:"employerId"`
	SourceCallID   string `json:"sourceCallId"`
	NeedsReview    bool   `json:"needsReview"`
}

func (e IncidentCreated) EventName() string { return "incidents.incident.created" }
