package service

import (
	"context"
	"errors"
	"fmt"

	"incident_portal_backend/internal/booking/domain"
	"incident_portal_backend/internal/booking/repository"
	dispatchrepo "incident_portal_backend/internal/dispatch/repository"
	dispatchsvc "incident_portal_backend/internal/dispatch/service"
	appevents "incident_portal_backend/internal/events"
)

// Call outcomes reported by the provider webhook.
const (
	OutcomeCompleted = "completed"
	OutcomeNoAnswer  = "no_answer"
	OutcomeFailed    = "failed"
)

// CallCompletedParams is the analyzed result of a finished call leg.
type CallCompletedParams struct {
	CallID          string
	WorkflowID      *int64
	Outcome         string
	AvailableTimes  []domain.TimeSlot
	ChosenSlotIndex *int
	ChosenSlot      *domain.TimeSlot
	PreferredDoctor string
	CenterConfirmed *bool
	FailureReason   string
}

// HandleCallCompleted advances the workflow after a call leg finishes. A call
// id that does not match the workflow's current call is logged and ignored,
// so duplicate or out-of-order webhook delivery never mutates state.
func (s *Service) HandleCallCompleted(ctx context.Context, params CallCompletedParams) error {
	if params.CallID == "" {
		return nil
	}

	w, ok, err := s.resolveWorkflow(ctx, params)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := s.calls.CompleteCall(ctx, params.CallID, historyOutcome(params.Outcome)); err != nil {
		s.log.DatabaseError("complete call history", err)
	}
	if err := s.calls.CompleteTaskByCallID(ctx, params.CallID); err != nil {
		s.log.DatabaseError("complete voice task", err)
	}
	if err := s.workflows.ClearCurrentCall(ctx, w.ID, params.CallID); err != nil {
		s.log.DatabaseError("clear current call", err)
	}

	switch w.Status {
	case domain.StatusCallingMedicalCenter:
		return s.finishCenterLeg(ctx, w, params)
	case domain.StatusCallingPatient:
		return s.finishPatientLeg(ctx, w, params)
	case domain.StatusConfirmingBooking:
		return s.finishConfirmLeg(ctx, w, params)
	default:
		s.log.Warn("call completed in unexpected workflow state",
			"workflow_id", w.ID, "status", string(w.Status), "call_id", params.CallID)
		return nil
	}
}

// resolveWorkflow locates the workflow for a webhook and applies the stale
// call guard. The second return value is false for silent no-ops.
func (s *Service) resolveWorkflow(ctx context.Context, params CallCompletedParams) (repository.Workflow, bool, error) {
	if params.WorkflowID != nil {
		w, err := s.workflows.GetByID(ctx, *params.WorkflowID)
		if errors.Is(err, repository.ErrWorkflowNotFound) {
			s.log.Warn("webhook for unknown workflow", "workflow_id", *params.WorkflowID, "call_id", params.CallID)
			return repository.Workflow{}, false, nil
		}
		if err != nil {
			return repository.Workflow{}, false, err
		}
		if w.CurrentCallID == nil || *w.CurrentCallID != params.CallID {
			s.log.Warn("stale webhook ignored", "workflow_id", w.ID, "call_id", params.CallID)
			return repository.Workflow{}, false, nil
		}
		return w, true, nil
	}

	w, err := s.workflows.FindByCurrentCallID(ctx, params.CallID)
	if errors.Is(err, repository.ErrWorkflowNotFound) {
		s.log.Warn("stale webhook ignored, no workflow owns call", "call_id", params.CallID)
		return repository.Workflow{}, false, nil
	}
	if err != nil {
		return repository.Workflow{}, false, err
	}
	return w, true, nil
}

func (s *Service) finishCenterLeg(ctx context.Context, w repository.Workflow, params CallCompletedParams) error {
	if params.Outcome != OutcomeCompleted || len(params.AvailableTimes) == 0 {
		reason := params.FailureReason
		if reason == "" {
			reason = "medical center call yielded no available times"
		}
		s.failWorkflow(ctx, w, reason)
		return nil
	}

	if err := s.workflows.StoreAvailableTimes(ctx, w.ID, params.AvailableTimes); err != nil {
		return fmt.Errorf("store available times: %w", err)
	}
	next, err := domain.Transition(w.Status, domain.TriggerTimesExtracted)
	if err != nil {
		return err
	}
	if err := s.workflows.SetStatus(ctx, w.ID, next); err != nil {
		return err
	}
	s.log.CallEvent("available times captured", params.CallID, dispatchsvc.TaskBookingGetTimes, w.ID)
	return nil
}

func (s *Service) finishPatientLeg(ctx context.Context, w repository.Workflow, params CallCompletedParams) error {
	slot := s.chosenSlot(w, params)
	if params.Outcome == OutcomeCompleted && slot != nil {
		if err := s.workflows.SetPatientPreference(ctx, w.ID, slot, params.PreferredDoctor); err != nil {
			return fmt.Errorf("store patient preference: %w", err)
		}

		wc, err := s.workflows.GetContext(ctx, w.ID)
		if err != nil {
			return err
		}
		_, err = s.dispatchCenterLeg(ctx, wc, dispatchsvc.TaskBookingFinalConfirm, "patient_confirmed")
		return err
	}

	// No slot chosen: back to the retry pool, or terminal once attempts are
	// exhausted.
	if w.PatientCallAttempts >= s.maxAttempts {
		s.failWorkflow(ctx, w, fmt.Sprintf("patient unreachable after %d attempts", s.maxAttempts))
		return nil
	}
	next, err := domain.Transition(w.Status, domain.TriggerPatientNoAnswer)
	if err != nil {
		return err
	}
	return s.workflows.SetStatus(ctx, w.ID, next)
}

func (s *Service) finishConfirmLeg(ctx context.Context, w repository.Workflow, params CallCompletedParams) error {
	confirmed := params.Outcome == OutcomeCompleted
	if params.CenterConfirmed != nil {
		confirmed = *params.CenterConfirmed
	}
	if !confirmed {
		reason := params.FailureReason
		if reason == "" {
			reason = "medical center did not confirm the booking"
		}
		s.failWorkflow(ctx, w, reason)
		return nil
	}

	slot := domain.TimeSlot{}
	if w.ConfirmedSlot != nil {
		slot = *w.ConfirmedSlot
	}
	if _, err := s.workflows.CreateAppointment(ctx, w, slot); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	if err := s.workflows.MarkCompleted(ctx, w.ID); err != nil {
		return err
	}

	s.bus.Publish(ctx, appevents.WorkflowCompleted{
		BaseEvent:     appevents.NewBaseEvent(),
		WorkflowID:    w.ID,
		IncidentID:    w.IncidentID,
		ConfirmedSlot: slot.Display(),
	})
	return nil
}

// chosenSlot resolves the patient's pick: an explicit slot wins, otherwise a
// 1-based index into the offered times.
func (s *Service) chosenSlot(w repository.Workflow, params CallCompletedParams) *domain.TimeSlot {
	if params.ChosenSlot != nil {
		return params.ChosenSlot
	}
	if params.ChosenSlotIndex != nil {
		i := *params.ChosenSlotIndex
		if i >= 1 && i <= len(w.AvailableTimes) {
			slot := w.AvailableTimes[i-1]
			return &slot
		}
	}
	return nil
}

func historyOutcome(outcome string) string {
	switch outcome {
	case OutcomeCompleted:
		return dispatchrepo.OutcomeCompleted
	case OutcomeNoAnswer:
		return dispatchrepo.OutcomeNoAnswer
	default:
		return dispatchrepo.OutcomeFailed
	}
}
