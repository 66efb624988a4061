// Package service implements outbound call dispatch: it builds the variable
// bag for a task type, places the call with the provider and records the
// resulting task and call-history rows.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	appevents "incident_portal_backend/internal/events"
	"incident_portal_backend/internal/dispatch/repository"
	"incident_portal_backend/internal/telephony"
	"incident_portal_backend/platform/apperr"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/phone"
)

// Task types recognized by the dispatcher.
const (
	TaskBookingGetTimes       = "booking_get_times"
	TaskBookingPatientConfirm = "booking_patient_confirm"
	TaskBookingFinalConfirm   = "booking_final_confirm"
	TaskCheckIn               = "check_in"
	TaskReminder              = "reminder"
	TaskFollowUp              = "follow_up"
	TaskSurvey                = "survey"
)

// Call targets recorded in call history.
const (
	TargetMedicalCenter = "medical_center"
	TargetPatient       = "patient"
	TargetWorker        = "worker"
)

// TaskStore persists voice tasks and call history. Satisfied by
// repository.Repository.
type TaskStore interface {
	CreateTask(ctx context.Context, params repository.CreateTaskParams) (repository.VoiceTask, error)
	MarkTaskInProgress(ctx context.Context, id int64, providerCallID string) error
	MarkTaskFailed(ctx context.Context, id int64, errText string) error
	NextCallSequence(ctx context.Context, workflowID int64) (int, error)
	RecordCall(ctx context.Context, params repository.RecordCallParams) (repository.CallHistoryRecord, error)
}

// WorkflowMarker lets the dispatcher advance a booking workflow's call state
// without importing the booking module. The booking repository implements it;
// wiring happens in the composition root.
type WorkflowMarker interface {
	// ClaimForCall conditionally marks the workflow as calling. It must fail
	// when another call is already in flight (current_call_id non-null).
	ClaimForCall(ctx context.Context, workflowID int64, taskType string) error
	// AttachCall stores the provider call id on the claimed workflow.
	AttachCall(ctx context.Context, workflowID int64, providerCallID string) error
	// ReleaseFailed marks the workflow failed with a reason after a dispatch
	// error.
	ReleaseFailed(ctx context.Context, workflowID int64, reason string) error
}

// DispatchRequest describes one call leg to place.
type DispatchRequest struct {
	TaskType    string
	IncidentID  *int64
	WorkflowID  *int64
	TargetPhone string
	TargetName  string
	Priority    string
	ScheduledAt *time.Time
	Slots       []TimeSlot
	Variables   map[string]string
	ContextData map[string]any
	CreatedBy   string
}

// DispatchResult is returned after a successful dispatch.
type DispatchResult struct {
	Task           repository.VoiceTask
	ProviderCallID string
	CallStatus     string
	CallSequence   int
}

// Service places outbound calls and keeps the dispatch records consistent.
type Service struct {
	tasks     TaskStore
	provider  telephony.CallProvider
	phones    *phone.Normalizer
	workflows WorkflowMarker
	bus       appevents.Bus
	log       *logger.Logger
}

// New creates a new dispatch service. The workflow marker is attached later
// by the composition root via SetWorkflowMarker.
func New(tasks TaskStore, provider telephony.CallProvider, phones *phone.Normalizer, bus appevents.Bus, log *logger.Logger) *Service {
	return &Service{
		tasks:    tasks,
		provider: provider,
		phones:   phones,
		bus:      bus,
		log:      log,
	}
}

// SetWorkflowMarker wires the booking workflow store in. Dispatch requests
// carrying a workflow id fail until this is set.
func (s *Service) SetWorkflowMarker(m WorkflowMarker) {
	s.workflows = m
}

// CallTargetFor maps a task type to the party being called.
func CallTargetFor(taskType string) string {
	switch taskType {
	case TaskBookingGetTimes, TaskBookingFinalConfirm:
		return TargetMedicalCenter
	case TaskBookingPatientConfirm:
		return TargetPatient
	default:
		return TargetWorker
	}
}

// Dispatch places one outbound call. For workflow-bound tasks it first claims
// the workflow (one in-flight call at a time), then records the task, the
// call and the workflow's current call id. On provider failure the task and
// workflow are marked failed and the error surfaces; nothing is retried here.
func (s *Service) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	if strings.TrimSpace(req.TaskType) == "" {
		return DispatchResult{}, apperr.Validation("task_type is required")
	}
	if strings.TrimSpace(req.TargetPhone) == "" {
		return DispatchResult{}, apperr.Validation("target phone number is required")
	}

	normalized := s.phones.Normalize(req.TargetPhone)

	var sequence int
	if req.WorkflowID != nil {
		if s.workflows == nil {
			return DispatchResult{}, apperr.Internal("workflow store is not wired")
		}
		if err := s.workflows.ClaimForCall(ctx, *req.WorkflowID, req.TaskType); err != nil {
			return DispatchResult{}, err
		}

		seq, err := s.tasks.NextCallSequence(ctx, *req.WorkflowID)
		if err != nil {
			err = fmt.Errorf("compute call sequence: %w", err)
			s.releaseClaim(ctx, *req.WorkflowID, err)
			return DispatchResult{}, err
		}
		sequence = seq
	}

	task, err := s.tasks.CreateTask(ctx, repository.CreateTaskParams{
		IncidentID:        req.IncidentID,
		TaskType:          req.TaskType,
		Priority:          req.Priority,
		TargetPhone:       normalized,
		TargetName:        req.TargetName,
		BookingWorkflowID: req.WorkflowID,
		ContextData:       req.ContextData,
		ScheduledAt:       req.ScheduledAt,
		CreatedBy:         req.CreatedBy,
	})
	if err != nil {
		err = fmt.Errorf("create voice task: %w", err)
		if req.WorkflowID != nil {
			s.releaseClaim(ctx, *req.WorkflowID, err)
		}
		return DispatchResult{}, err
	}

	vars := buildVariables(req.WorkflowID, req.TaskType, req.TargetName, req.Slots, req.Variables)

	metadata := map[string]any{
		"voice_task_id": task.ID,
		"task_type":     req.TaskType,
	}
	if req.WorkflowID != nil {
		metadata["workflow_id"] = *req.WorkflowID
		metadata["call_sequence"] = sequence
	}
	if req.IncidentID != nil {
		metadata["incident_id"] = *req.IncidentID
	}

	placed, err := s.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		ToNumber:  normalized,
		TaskType:  req.TaskType,
		Variables: vars,
		Metadata:  metadata,
	})
	if err != nil {
		s.failDispatch(ctx, task, req, err)
		return DispatchResult{}, err
	}

	if err := s.tasks.MarkTaskInProgress(ctx, task.ID, placed.CallID); err != nil {
		s.log.DatabaseError("mark voice task in progress", err)
	}

	if req.WorkflowID != nil {
		if _, err := s.tasks.RecordCall(ctx, repository.RecordCallParams{
			WorkflowID:     *req.WorkflowID,
			CallSequence:   sequence,
			CallTarget:     CallTargetFor(req.TaskType),
			TargetPhone:    normalized,
			TargetName:     req.TargetName,
			TaskType:       req.TaskType,
			ProviderCallID: placed.CallID,
			VoiceTaskID:    task.ID,
		}); err != nil {
			s.log.DatabaseError("record call history", err)
		}
		if err := s.workflows.AttachCall(ctx, *req.WorkflowID, placed.CallID); err != nil {
			s.log.DatabaseError("attach call to workflow", err)
		}
	}

	s.publishDispatched(ctx, task, req, placed.CallID, sequence)

	workflowID := int64(0)
	if req.WorkflowID != nil {
		workflowID = *req.WorkflowID
	}
	s.log.CallEvent("call dispatched", placed.CallID, req.TaskType, workflowID)

	return DispatchResult{
		Task:           task,
		ProviderCallID: placed.CallID,
		CallStatus:     placed.Status,
		CallSequence:   sequence,
	}, nil
}

// releaseClaim undoes a workflow claim after a post-claim step failed before
// any call was placed. Without it the workflow would sit in a calling state
// with no call attached, invisible to both the scheduler and the webhooks.
func (s *Service) releaseClaim(ctx context.Context, workflowID int64, cause error) {
	reason := fmt.Sprintf("call dispatch failed: %v", cause)
	if err := s.workflows.ReleaseFailed(ctx, workflowID, reason); err != nil {
		s.log.DatabaseError("mark workflow failed", err)
	}
}

// failDispatch persists the failure before the error is surfaced so the
// outcome is visible without retrying the request.
func (s *Service) failDispatch(ctx context.Context, task repository.VoiceTask, req DispatchRequest, cause error) {
	if err := s.tasks.MarkTaskFailed(ctx, task.ID, cause.Error()); err != nil {
		s.log.DatabaseError("mark voice task failed", err)
	}
	if req.WorkflowID != nil {
		reason := fmt.Sprintf("call dispatch failed: %v", cause)
		if err := s.workflows.ReleaseFailed(ctx, *req.WorkflowID, reason); err != nil {
			s.log.DatabaseError("mark workflow failed", err)
		}
	}

	evt := appevents.CallDispatchFailed{
		BaseEvent:   appevents.NewBaseEvent(),
		VoiceTaskID: task.ID,
		TaskType:    req.TaskType,
		Reason:      cause.Error(),
	}
	if req.IncidentID != nil {
		evt.IncidentID = *req.IncidentID
	}
	if req.WorkflowID != nil {
		evt.WorkflowID = *req.WorkflowID
	}
	s.bus.Publish(ctx, evt)
}

func (s *Service) publishDispatched(ctx context.Context, task repository.VoiceTask, req DispatchRequest, callID string, sequence int) {
	evt := appevents.CallDispatched{
		BaseEvent:      appevents.NewBaseEvent(),
		VoiceTaskID:    task.ID,
		ProviderCallID: callID,
		TaskType:       req.TaskType,
		CallSequence:   sequence,
		TargetName:     req.TargetName,
		TargetPhone:    task.TargetPhone,
		CreatedBy:      req.CreatedBy,
	}
	if req.IncidentID != nil {
		evt.IncidentID = *req.IncidentID
	}
	if req.WorkflowID != nil {
		evt.WorkflowID = *req.WorkflowID
	}
	s.bus.Publish(ctx, evt)
}
