package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TimeSlot is one appointment option offered by a medical center.
type TimeSlot struct {
	Date   string `json:"date,omitempty"`
	Time   string `json:"time,omitempty"`
	Doctor string `json:"doctor,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Display renders a slot for spoken summaries.
func (s TimeSlot) Display() string {
	if s.Label != "" {
		return s.Label
	}
	parts := make([]string, 0, 3)
	if s.Date != "" {
		parts = append(parts, s.Date)
	}
	if s.Time != "" {
		parts = append(parts, "at "+s.Time)
	}
	if s.Doctor != "" {
		parts = append(parts, "with "+s.Doctor)
	}
	return strings.Join(parts, " ")
}

// buildVariables assembles the dynamic-variable bag handed to the voice
// agent. Every call carries the workflow id, a call-type tag and the worker's
// display name. When time slots are known they are included twice: a numbered
// spoken summary and the raw structured payload, so the agent can both read
// them out and echo them back verbatim.
func buildVariables(workflowID *int64, taskType, workerName string, slots []TimeSlot, extra map[string]string) map[string]string {
	vars := map[string]string{
		"call_type":   taskType,
		"worker_name": workerName,
	}
	if workflowID != nil {
		vars["workflow_id"] = strconv.FormatInt(*workflowID, 10)
	}

	if len(slots) > 0 {
		var summary strings.Builder
		for i, slot := range slots {
			fmt.Fprintf(&summary, "%d. %s\n", i+1, slot.Display())
		}
		vars["available_times_summary"] = strings.TrimRight(summary.String(), "\n")

		if raw, err := json.Marshal(slots); err == nil {
			vars["available_times_json"] = string(raw)
		}
	}

	for k, v := range extra {
		if v != "" {
			vars[k] = v
		}
	}
	return vars
}
