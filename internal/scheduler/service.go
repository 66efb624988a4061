// Package scheduler reanimates booking workflows stalled awaiting a patient
// response: a fixed-cadence pass scans the retry pool, enforces the calling
// hours gate and re-invokes the dispatcher per workflow.
package scheduler

import (
	"context"
	"time"

	bookingrepo "incident_portal_backend/internal/booking/repository"
	dispatchsvc "incident_portal_backend/internal/dispatch/service"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"
)

// CreatedByRetry tags voice tasks placed by the scheduler.
const CreatedByRetry = "ai_booking_agent_retry"

// BookingQueue is the slice of the booking service the scheduler needs.
type BookingQueue interface {
	ListAwaitingRetry(ctx context.Context) ([]bookingrepo.WorkflowContext, error)
	RetryPatientCall(ctx context.Context, wc bookingrepo.WorkflowContext, createdBy string) (dispatchsvc.DispatchResult, error)
}

// WorkflowResult is the per-workflow outcome of one pass.
type WorkflowResult struct {
	WorkflowID int64  `json:"workflow_id"`
	Attempt    int    `json:"attempt"`
	CallID     string `json:"call_id,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// PassSummary reports one scheduler pass for observability.
type PassSummary struct {
	WithinCallingHours bool             `json:"within_calling_hours"`
	Processed          int              `json:"processed"`
	CallsInitiated     int              `json:"calls_initiated"`
	Results            []WorkflowResult `json:"results"`
}

// Service runs patient retry passes.
type Service struct {
	booking BookingQueue
	hours   CallingHours
	now     func() time.Time
	log     *logger.Logger
}

// New creates a new scheduler service.
func New(booking BookingQueue, cfg config.SchedulerConfig, log *logger.Logger) (*Service, error) {
	hours, err := NewCallingHours(cfg.GetCallingHoursStart(), cfg.GetCallingHoursEnd(), cfg.GetCallingTimeZone())
	if err != nil {
		return nil, err
	}
	return &Service{
		booking: booking,
		hours:   hours,
		now:     time.Now,
		log:     log,
	}, nil
}

// RunPatientRetryPass processes every workflow awaiting a patient retry.
// Outside calling hours it does nothing and reports zero calls. Each
// workflow is independent: one failure is recorded and the loop continues.
func (s *Service) RunPatientRetryPass(ctx context.Context) (PassSummary, error) {
	summary := PassSummary{Results: []WorkflowResult{}}

	if !s.hours.Contains(s.now()) {
		s.log.SchedulerRun(0, 0, false)
		return summary, nil
	}
	summary.WithinCallingHours = true

	pool, err := s.booking.ListAwaitingRetry(ctx)
	if err != nil {
		return summary, err
	}

	for _, wc := range pool {
		summary.Processed++
		result := WorkflowResult{
			WorkflowID: wc.Workflow.ID,
			Attempt:    wc.Workflow.PatientCallAttempts + 1,
		}

		res, err := s.booking.RetryPatientCall(ctx, wc, CreatedByRetry)
		if err != nil {
			result.Status = "failed"
			result.Error = err.Error()
			s.log.Error("patient retry failed",
				"workflow_id", wc.Workflow.ID, "error", err)
		} else {
			result.Status = "call_initiated"
			result.CallID = res.ProviderCallID
			summary.CallsInitiated++
		}
		summary.Results = append(summary.Results, result)
	}

	s.log.SchedulerRun(summary.Processed, summary.CallsInitiated, true)
	return summary, nil
}
