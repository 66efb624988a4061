package domain

import "strings"

// TimeSlot is one appointment option offered by the medical center leg.
// Slots are stored on the workflow in the order the center offered them and
// echoed back to the patient by index.
type TimeSlot struct {
	Date   string `json:"date,omitempty"`
	Time   string `json:"time,omitempty"`
	Doctor string `json:"doctor,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Display renders a slot for summaries and the appointment record.
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
