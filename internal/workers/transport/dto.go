// Package transport defines request/response DTOs for the workers module.
package transport

import (
	"incident_portal_backend/internal/shared/jsonx"
	"incident_portal_backend/internal/workers/service"
)

// LookupRequest is the body of POST /workers/lookup.
type LookupRequest struct {
	WorkerName string       `json:"worker_name" binding:"required"`
	EmployerID *jsonx.FlexID `json:"employer_id,omitempty"`
}

// LookupResponse is the verdict returned to the voice agent.
type LookupResponse struct {
	Found             bool                     `json:"found"`
	WorkerID          *int64                   `json:"worker_id,omitempty"`
	FullName          string                   `json:"full_name,omitempty"`
	MobileNumber      string                   `json:"mobile_number,omitempty"`
	Occupation        string                   `json:"occupation,omitempty"`
	NeedsConfirmation bool                     `json:"needs_confirmation"`
	PossibleMatches   []service.MatchCandidate `json:"possible_matches,omitempty"`
	Message           string                   `json:"message"`
}

// FromVerdict converts a resolver verdict into the wire response.
func FromVerdict(v service.Verdict) LookupResponse {
	resp := LookupResponse{
		Found:             v.Status == service.StatusFound,
		NeedsConfirmation: v.Status == service.StatusNeedsConfirmation,
		PossibleMatches:   v.Candidates,
		Message:           v.Message,
	}
	if v.Best != nil {
		resp.WorkerID = &v.Best.WorkerID
		resp.FullName = v.Best.FullName
		resp.MobileNumber = v.Best.MobileNumber
		resp.Occupation = v.Best.Occupation
	}
	return resp
}
