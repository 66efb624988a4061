// Package domain holds the booking workflow state machine. Both the
// synchronous continuation path and the retry scheduler consult the same
// transition table, so the two call sites cannot drift apart.
package domain

import "fmt"

// Status is a booking workflow lifecycle state.
type Status string

const (
	StatusPending              Status = "pending"
	StatusCallingMedicalCenter Status = "calling_medical_center"
	StatusAwaitingPatientRetry Status = "awaiting_patient_retry"
	StatusCallingPatient       Status = "calling_patient"
	StatusConfirmingBooking    Status = "confirming_booking"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
)

// Trigger is an event that may advance a workflow.
type Trigger string

const (
	// TriggerStart fires when the booking is created and the first medical
	// center leg is dispatched.
	TriggerStart Trigger = "start"
	// TriggerTimesExtracted fires when the medical center leg completed and
	// available times were captured.
	TriggerTimesExtracted Trigger = "times_extracted"
	// TriggerNoTimes fires when the medical center leg yielded no times.
	TriggerNoTimes Trigger = "no_times"
	// TriggerPatientCall fires when a patient leg is dispatched, either by
	// the continuation path or by a scheduler pass.
	TriggerPatientCall Trigger = "patient_call"
	// TriggerPatientNoAnswer fires when a patient leg ends without a chosen
	// slot; the workflow returns to the retry pool.
	TriggerPatientNoAnswer Trigger = "patient_no_answer"
	// TriggerSlotChosen fires when the patient picked a slot and the final
	// confirmation leg is dispatched.
	TriggerSlotChosen Trigger = "slot_chosen"
	// TriggerCenterConfirmed fires when the medical center confirmed the
	// chosen slot.
	TriggerCenterConfirmed Trigger = "center_confirmed"
	// TriggerFail fires on any unrecoverable failure, including exhausted
	// patient attempts and center rejection.
	TriggerFail Trigger = "fail"
)

// ErrInvalidTransition reports a trigger that is not legal from a state.
type ErrInvalidTransition struct {
	From    Status
	Trigger Trigger
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid workflow transition: %s from %s", e.Trigger, e.From)
}

var transitions = map[Status]map[Trigger]Status{
	StatusPending: {
		TriggerStart: StatusCallingMedicalCenter,
		TriggerFail:  StatusFailed,
	},
	StatusCallingMedicalCenter: {
		TriggerTimesExtracted: StatusAwaitingPatientRetry,
		TriggerNoTimes:        StatusFailed,
		TriggerFail:           StatusFailed,
	},
	StatusAwaitingPatientRetry: {
		TriggerPatientCall: StatusCallingPatient,
		TriggerFail:        StatusFailed,
	},
	StatusCallingPatient: {
		TriggerSlotChosen:      StatusConfirmingBooking,
		TriggerPatientNoAnswer: StatusAwaitingPatientRetry,
		TriggerFail:            StatusFailed,
	},
	StatusConfirmingBooking: {
		TriggerCenterConfirmed: StatusCompleted,
		TriggerFail:            StatusFailed,
	},
}

// Transition returns the next status for a trigger, or ErrInvalidTransition
// when the trigger is not legal from the current state. Terminal states admit
// no triggers.
func Transition(from Status, trigger Trigger) (Status, error) {
	if next, ok := transitions[from][trigger]; ok {
		return next, nil
	}
	return from, ErrInvalidTransition{From: from, Trigger: trigger}
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsCalling reports whether the status represents an in-flight call, the
// only states in which current_call_id may be set.
func (s Status) IsCalling() bool {
	switch s {
	case StatusCallingMedicalCenter, StatusCallingPatient, StatusConfirmingBooking:
		return true
	}
	return false
}
