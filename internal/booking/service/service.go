// Package service orchestrates the booking workflow lifecycle: which leg to
// call next, status transitions and terminal outcomes.
package service

import (
	"context"
	"fmt"
	"strconv"

	"incident_portal_backend/internal/booking/domain"
	"incident_portal_backend/internal/booking/repository"
	dispatchsvc "incident_portal_backend/internal/dispatch/service"
	appevents "incident_portal_backend/internal/events"
	"incident_portal_backend/platform/apperr"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"
)

// WorkflowStore persists booking workflows. Satisfied by
// repository.Repository.
type WorkflowStore interface {
	Create(ctx context.Context, params repository.CreateWorkflowParams) (repository.Workflow, error)
	GetByID(ctx context.Context, id int64) (repository.Workflow, error)
	GetContext(ctx context.Context, id int64) (repository.WorkflowContext, error)
	FindByCurrentCallID(ctx context.Context, callID string) (repository.Workflow, error)
	ListAwaitingPatientRetry(ctx context.Context) ([]repository.WorkflowContext, error)
	ClearCurrentCall(ctx context.Context, workflowID int64, providerCallID string) error
	SetStatus(ctx context.Context, workflowID int64, status domain.Status) error
	StoreAvailableTimes(ctx context.Context, workflowID int64, slots []domain.TimeSlot) error
	SetPatientPreference(ctx context.Context, workflowID int64, slot *domain.TimeSlot, doctor string) error
	IncrementPatientAttempts(ctx context.Context, workflowID int64) (int, error)
	MarkFailed(ctx context.Context, workflowID int64, reason string) error
	MarkCompleted(ctx context.Context, workflowID int64) error
	CreateAppointment(ctx context.Context, w repository.Workflow, slot domain.TimeSlot) (repository.Appointment, error)
}

// Dispatcher places call legs. Satisfied by the dispatch service.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatchsvc.DispatchRequest) (dispatchsvc.DispatchResult, error)
}

// CallLog closes dispatch records when a call finishes. Satisfied by the
// dispatch repository.
type CallLog interface {
	CompleteCall(ctx context.Context, providerCallID, outcome string) error
	CompleteTaskByCallID(ctx context.Context, providerCallID string) error
}

// Service owns booking workflow transitions.
type Service struct {
	workflows   WorkflowStore
	dispatcher  Dispatcher
	calls       CallLog
	bus         appevents.Bus
	maxAttempts int
	log         *logger.Logger
}

// New creates a new booking service.
func New(workflows WorkflowStore, dispatcher Dispatcher, calls CallLog, cfg config.BookingConfig, bus appevents.Bus, log *logger.Logger) *Service {
	return &Service{
		workflows:   workflows,
		dispatcher:  dispatcher,
		calls:       calls,
		bus:         bus,
		maxAttempts: cfg.GetMaxPatientAttempts(),
		log:         log,
	}
}

// StartParams describes a new booking effort.
type StartParams struct {
	IncidentID       int64
	MedicalCenterID  int64
	WorkerID         int64
	DoctorPreference string
	Urgency          string
}

// StartResult is returned after the first leg is dispatched.
type StartResult struct {
	Workflow repository.Workflow
	CallID   string
}

// Start creates a workflow and dispatches the medical center leg.
func (s *Service) Start(ctx context.Context, params StartParams) (StartResult, error) {
	w, err := s.workflows.Create(ctx, repository.CreateWorkflowParams{
		IncidentID:       params.IncidentID,
		MedicalCenterID:  params.MedicalCenterID,
		WorkerID:         params.WorkerID,
		DoctorPreference: params.DoctorPreference,
		Urgency:          params.Urgency,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("create workflow: %w", err)
	}

	wc, err := s.workflows.GetContext(ctx, w.ID)
	if err != nil {
		return StartResult{}, err
	}

	res, err := s.dispatchCenterLeg(ctx, wc, dispatchsvc.TaskBookingGetTimes, "booking_started")
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{Workflow: w, CallID: res.ProviderCallID}, nil
}

// ContinueResult describes the leg started by Continue.
type ContinueResult struct {
	CallID      string
	Target      string
	TargetPhone string
}

// Continue starts the next call leg for an existing workflow.
func (s *Service) Continue(ctx context.Context, workflowID int64, taskType string) (ContinueResult, error) {
	wc, err := s.workflows.GetContext(ctx, workflowID)
	if err != nil {
		if err == repository.ErrWorkflowNotFound {
			return ContinueResult{}, apperr.NotFound("booking workflow not found")
		}
		return ContinueResult{}, err
	}

	var res dispatchsvc.DispatchResult
	switch taskType {
	case dispatchsvc.TaskBookingGetTimes, dispatchsvc.TaskBookingFinalConfirm:
		res, err = s.dispatchCenterLeg(ctx, wc, taskType, "manual_continue")
	case dispatchsvc.TaskBookingPatientConfirm:
		res, err = s.RetryPatientCall(ctx, wc, "manual_continue")
	default:
		return ContinueResult{}, apperr.Validation("task type " + taskType + " is not a booking call leg")
	}
	if err != nil {
		return ContinueResult{}, err
	}

	return ContinueResult{
		CallID:      res.ProviderCallID,
		Target:      dispatchsvc.CallTargetFor(taskType),
		TargetPhone: res.Task.TargetPhone,
	}, nil
}

// ListAwaitingRetry exposes the retry pool for scheduler passes.
func (s *Service) ListAwaitingRetry(ctx context.Context) ([]repository.WorkflowContext, error) {
	return s.workflows.ListAwaitingPatientRetry(ctx)
}

// RetryPatientCall bumps the attempt counter, then dispatches the patient
// leg. The counter moves first so a worker can never receive more calls
// than the cap allows; a dispatch failure may cost an attempt, never grant
// one. Workers without a usable phone number fail the workflow immediately;
// exhausted attempts fail it with the unreachable reason.
func (s *Service) RetryPatientCall(ctx context.Context, wc repository.WorkflowContext, createdBy string) (dispatchsvc.DispatchResult, error) {
	w := wc.Workflow

	if wc.WorkerPhone == "" {
		reason := "worker has no usable phone number"
		s.failWorkflow(ctx, w, reason)
		return dispatchsvc.DispatchResult{}, apperr.Validation(reason)
	}
	if w.PatientCallAttempts >= s.maxAttempts {
		reason := fmt.Sprintf("patient unreachable after %d attempts", s.maxAttempts)
		s.failWorkflow(ctx, w, reason)
		return dispatchsvc.DispatchResult{}, apperr.Conflict(reason)
	}

	attempts, err := s.workflows.IncrementPatientAttempts(ctx, w.ID)
	if err != nil {
		return dispatchsvc.DispatchResult{}, fmt.Errorf("increment patient attempts: %w", err)
	}

	incidentID := w.IncidentID
	res, err := s.dispatcher.Dispatch(ctx, dispatchsvc.DispatchRequest{
		TaskType:    dispatchsvc.TaskBookingPatientConfirm,
		IncidentID:  &incidentID,
		WorkflowID:  &w.ID,
		TargetPhone: wc.WorkerPhone,
		TargetName:  wc.WorkerName,
		Slots:       toDispatchSlots(w.AvailableTimes),
		Variables: map[string]string{
			"medical_center":    wc.CenterName,
			"doctor_preference": w.DoctorPreference,
			"attempt_number":    strconv.Itoa(attempts),
		},
		CreatedBy: createdBy,
	})
	if err != nil {
		return dispatchsvc.DispatchResult{}, err
	}
	return res, nil
}

func (s *Service) dispatchCenterLeg(ctx context.Context, wc repository.WorkflowContext, taskType, createdBy string) (dispatchsvc.DispatchResult, error) {
	w := wc.Workflow
	if wc.CenterPhone == "" {
		reason := "medical center has no phone number"
		s.failWorkflow(ctx, w, reason)
		return dispatchsvc.DispatchResult{}, apperr.Validation(reason)
	}

	vars := map[string]string{
		"medical_center":    wc.CenterName,
		"doctor_preference": w.DoctorPreference,
		"urgency":           w.Urgency,
		"patient_name":      wc.WorkerName,
	}

	var slots []dispatchsvc.TimeSlot
	if taskType == dispatchsvc.TaskBookingFinalConfirm {
		if w.ConfirmedSlot == nil {
			return dispatchsvc.DispatchResult{}, apperr.Conflict("no slot has been chosen yet")
		}
		slots = toDispatchSlots([]domain.TimeSlot{*w.ConfirmedSlot})
		vars["chosen_slot"] = w.ConfirmedSlot.Display()
		if w.PatientPreferredDoctor != nil {
			vars["preferred_doctor"] = *w.PatientPreferredDoctor
		}
	}

	incidentID := w.IncidentID
	return s.dispatcher.Dispatch(ctx, dispatchsvc.DispatchRequest{
		TaskType:    taskType,
		IncidentID:  &incidentID,
		WorkflowID:  &w.ID,
		TargetPhone: wc.CenterPhone,
		TargetName:  wc.CenterName,
		Slots:       slots,
		Variables:   vars,
		CreatedBy:   createdBy,
	})
}

func (s *Service) failWorkflow(ctx context.Context, w repository.Workflow, reason string) {
	if err := s.workflows.MarkFailed(ctx, w.ID, reason); err != nil {
		s.log.DatabaseError("mark workflow failed", err)
		return
	}
	s.bus.Publish(ctx, appevents.WorkflowFailed{
		BaseEvent:  appevents.NewBaseEvent(),
		WorkflowID: w.ID,
		IncidentID: w.IncidentID,
		Reason:     reason,
	})
}

func toDispatchSlots(slots []domain.TimeSlot) []dispatchsvc.TimeSlot {
	if len(slots) == 0 {
		return nil
	}
	out := make([]dispatchsvc.TimeSlot, len(slots))
	for i, s := range slots {
		out[i] = dispatchsvc.TimeSlot{Date: s.Date, Time: s.Time, Doctor: s.Doctor, Label: s.Label}
	}
	return out
}
