// Package transport defines the wire DTOs for the dispatch endpoints.
package transport

import (
	"time"

	"incident_portal_backend/internal/shared/jsonx"
)

// CreateVoiceTaskRequest creates and dispatches a standalone voice task.
type CreateVoiceTaskRequest struct {
	TaskType    string            `json:"task_type" validate:"required"`
	IncidentID  *jsonx.FlexID     `json:"incident_id"`
	TargetPhone string            `json:"target_phone" validate:"required"`
	TargetName  string            `json:"target_name"`
	Priority    string            `json:"priority"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
	Variables   map[string]string `json:"variables"`
	ContextData map[string]any    `json:"context_data"`
	CreatedBy   string            `json:"created_by"`
}

// CreateVoiceTaskResponse acknowledges a dispatched task.
type CreateVoiceTaskResponse struct {
	TaskID     int64  `json:"task_id"`
	CallID     string `json:"call_id"`
	CallStatus string `json:"call_status"`
}
