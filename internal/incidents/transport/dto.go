// Package transport defines the wire DTOs for incident intake endpoints.
package transport

// StagingResponse acknowledges a mid-call staging submission with the
// sentence the agent reads back.
type StagingResponse struct {
	Confirmation string `json:"confirmation"`
}

// FinalizeRequest is the call-completion payload for inbound intake.
type FinalizeRequest struct {
	CallID        string         `json:"call_id" validate:"required"`
	ExtractedData map[string]any `json:"extracted_data"`
	Transcript    string         `json:"transcript"`
}

// FinalizeResponse identifies the incident created (or found) for the call.
type FinalizeResponse struct {
	IncidentID     int64  `json:"incident_id"`
	IncidentNumber string `json:"incident_number"`
	WorkerID       *int64 `json:"worker_id,omitempty"`
	NeedsReview    bool   `json:"needs_review"`
	AlreadyExisted bool   `json:"already_existed"`
}
