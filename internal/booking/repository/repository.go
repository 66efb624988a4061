// Package repository provides data access for booking workflows and
// appointments.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"incident_portal_backend/internal/booking/domain"
	"incident_portal_backend/platform/apperr"
)

// ErrWorkflowNotFound is returned when a workflow lookup yields nothing.
var ErrWorkflowNotFound = errors.New("booking workflow not found")

// Workflow is one appointment-booking effort for a single incident.
type Workflow struct {
	ID                     int64
	IncidentID             int64
	MedicalCenterID        int64
	WorkerID               int64
	DoctorPreference       string
	Urgency                string
	Status                 domain.Status
	AvailableTimes         []domain.TimeSlot
	PatientPreferredDoctor *string
	PatientCallAttempts    int
	CurrentCallID          *string
	CurrentCallStartedAt   *time.Time
	CurrentCallEndedAt     *time.Time
	LastCallType           *string
	ConfirmedSlot          *domain.TimeSlot
	FailureReason          *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// WorkflowContext is a workflow joined with the contact details its call
// legs need.
type WorkflowContext struct {
	Workflow    Workflow
	WorkerName  string
	WorkerPhone string
	CenterName  string
	CenterPhone string
}

// Repository provides data access for booking workflows.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new booking repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const workflowColumns = `id, incident_id, medical_center_id, worker_id, doctor_preference,
	urgency, status, available_times, patient_preferred_doctor, patient_call_attempts,
	current_call_id, current_call_started_at, current_call_ended_at, last_call_type,
	confirmed_slot, failure_reason, created_at, updated_at`

func scanWorkflow(row pgx.Row) (Workflow, error) {
	var w Workflow
	var status string
	err := row.Scan(
		&w.ID, &w.IncidentID, &w.MedicalCenterID, &w.WorkerID, &w.DoctorPreference,
		&w.Urgency, &status, &w.AvailableTimes, &w.PatientPreferredDoctor, &w.PatientCallAttempts,
		&w.CurrentCallID, &w.CurrentCallStartedAt, &w.CurrentCallEndedAt, &w.LastCallType,
		&w.ConfirmedSlot, &w.FailureReason, &w.CreatedAt, &w.UpdatedAt,
	)
	w.Status = domain.Status(status)
	return w, err
}

// CreateWorkflowParams holds the fields for a new booking workflow.
type CreateWorkflowParams struct {
	IncidentID       int64
	MedicalCenterID  int64
	WorkerID         int64
	DoctorPreference string
	Urgency          string
}

// Create inserts a workflow in the pending state.
func (r *Repository) Create(ctx context.Context, params CreateWorkflowParams) (Workflow, error) {
	if params.Urgency == "" {
		params.Urgency = "normal"
	}
	return scanWorkflow(r.pool.QueryRow(ctx, `
		INSERT INTO booking_workflows (incident_id, medical_center_id, worker_id,
			doctor_preference, urgency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+workflowColumns+`
	`, params.IncidentID, params.MedicalCenterID, params.WorkerID,
		params.DoctorPreference, params.Urgency, string(domain.StatusPending)))
}

// GetByID returns a single workflow.
func (r *Repository) GetByID(ctx context.Context, id int64) (Workflow, error) {
	w, err := scanWorkflow(r.pool.QueryRow(ctx, `
		SELECT `+workflowColumns+` FROM booking_workflows WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Workflow{}, ErrWorkflowNotFound
	}
	return w, err
}

// FindByCurrentCallID returns the workflow whose in-flight call matches the
// provider call id, if any.
func (r *Repository) FindByCurrentCallID(ctx context.Context, callID string) (Workflow, error) {
	w, err := scanWorkflow(r.pool.QueryRow(ctx, `
		SELECT `+workflowColumns+` FROM booking_workflows WHERE current_call_id = $1
	`, callID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Workflow{}, ErrWorkflowNotFound
	}
	return w, err
}

const contextJoin = `
	SELECT w.id, w.incident_id, w.medical_center_id, w.worker_id, w.doctor_preference,
		w.urgency, w.status, w.available_times, w.patient_preferred_doctor, w.patient_call_attempts,
		w.current_call_id, w.current_call_started_at, w.current_call_ended_at, w.last_call_type,
		w.confirmed_slot, w.failure_reason, w.created_at, w.updated_at,
		COALESCE(TRIM(wk.first_name || ' ' || wk.last_name), ''), COALESCE(wk.mobile_number, ''),
		COALESCE(mc.name, ''), COALESCE(mc.phone, '')
	FROM booking_workflows w
	LEFT JOIN workers wk ON wk.id = w.worker_id
	LEFT JOIN medical_centers mc ON mc.id = w.medical_center_id`

func scanWorkflowContext(row pgx.Row) (WorkflowContext, error) {
	var wc WorkflowContext
	var status string
	err := row.Scan(
		&wc.Workflow.ID, &wc.Workflow.IncidentID, &wc.Workflow.MedicalCenterID, &wc.Workflow.WorkerID,
		&wc.Workflow.DoctorPreference, &wc.Workflow.Urgency, &status, &wc.Workflow.AvailableTimes,
		&wc.Workflow.PatientPreferredDoctor, &wc.Workflow.PatientCallAttempts, &wc.Workflow.CurrentCallID,
		&wc.Workflow.CurrentCallStartedAt, &wc.Workflow.CurrentCallEndedAt, &wc.Workflow.LastCallType,
		&wc.Workflow.ConfirmedSlot, &wc.Workflow.FailureReason, &wc.Workflow.CreatedAt, &wc.Workflow.UpdatedAt,
		&wc.WorkerName, &wc.WorkerPhone, &wc.CenterName, &wc.CenterPhone,
	)
	wc.Workflow.Status = domain.Status(status)
	return wc, err
}

// GetContext returns a workflow with worker and medical center contact info.
func (r *Repository) GetContext(ctx context.Context, id int64) (WorkflowContext, error) {
	wc, err := scanWorkflowContext(r.pool.QueryRow(ctx, contextJoin+` WHERE w.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkflowContext{}, ErrWorkflowNotFound
	}
	return wc, err
}

// ListAwaitingPatientRetry returns the workflows a scheduler pass should
// consider, oldest first. A workflow moved out of the state by a concurrent
// pass is simply not selected here.
func (r *Repository) ListAwaitingPatientRetry(ctx context.Context) ([]WorkflowContext, error) {
	rows, err := r.pool.Query(ctx,
		contextJoin+` WHERE w.status = $1 ORDER BY w.updated_at`,
		string(domain.StatusAwaitingPatientRetry))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkflowContext
	for rows.Next() {
		wc, err := scanWorkflowContext(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wc)
	}
	return out, rows.Err()
}

// triggerForTask maps a dispatchable task type to its workflow trigger.
func triggerForTask(taskType string) (domain.Trigger, string, bool) {
	switch taskType {
	case "booking_get_times":
		return domain.TriggerStart, "medical_center", true
	case "booking_patient_confirm":
		return domain.TriggerPatientCall, "patient", true
	case "booking_final_confirm":
		return domain.TriggerSlotChosen, "medical_center", true
	}
	return "", "", false
}

// ClaimForCall conditionally moves the workflow into the calling state for a
// task type. The update compares both status and current_call_id so two
// concurrent triggers cannot double-dispatch a call.
func (r *Repository) ClaimForCall(ctx context.Context, workflowID int64, taskType string) error {
	trigger, callType, ok := triggerForTask(taskType)
	if !ok {
		return apperr.Validation("task type " + taskType + " is not a booking call leg")
	}

	w, err := r.GetByID(ctx, workflowID)
	if err != nil {
		return err
	}
	next, err := domain.Transition(w.Status, trigger)
	if err != nil {
		return apperr.Conflict(err.Error())
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows
		SET status = $3, last_call_type = $4, current_call_started_at = now(),
			current_call_ended_at = NULL, updated_at = now()
		WHERE id = $1 AND status = $2 AND current_call_id IS NULL
	`, workflowID, string(w.Status), string(next), callType)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("a call is already in flight for this workflow")
	}
	return nil
}

// AttachCall stores the provider call id on a claimed workflow.
func (r *Repository) AttachCall(ctx context.Context, workflowID int64, providerCallID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows
		SET current_call_id = $2, updated_at = now()
		WHERE id = $1 AND current_call_id IS NULL
	`, workflowID, providerCallID)
	return err
}

// ClearCurrentCall releases the in-flight call slot if the given call id
// still owns it.
func (r *Repository) ClearCurrentCall(ctx context.Context, workflowID int64, providerCallID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows
		SET current_call_id = NULL, current_call_ended_at = now(), updated_at = now()
		WHERE id = $1 AND current_call_id = $2
	`, workflowID, providerCallID)
	return err
}

// SetStatus moves a workflow to a new status.
func (r *Repository) SetStatus(ctx context.Context, workflowID int64, status domain.Status) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows SET status = $2, updated_at = now() WHERE id = $1
	`, workflowID, string(status))
	return err
}

// StoreAvailableTimes records the slots returned by the medical center leg.
func (r *Repository) StoreAvailableTimes(ctx context.Context, workflowID int64, slots []domain.TimeSlot) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows SET available_times = $2, updated_at = now() WHERE id = $1
	`, workflowID, slots)
	return err
}

// SetPatientPreference records the slot and doctor the patient chose.
func (r *Repository) SetPatientPreference(ctx context.Context, workflowID int64, slot *domain.TimeSlot, doctor string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows
		SET confirmed_slot = $2, patient_preferred_doctor = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
	`, workflowID, slot, doctor)
	return err
}

// IncrementPatientAttempts bumps the attempt counter and returns the new
// value.
func (r *Repository) IncrementPatientAttempts(ctx context.Context, workflowID int64) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE booking_workflows
		SET patient_call_attempts = patient_call_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING patient_call_attempts
	`, workflowID).Scan(&attempts)
	return attempts, err
}

// MarkFailed moves the workflow to the failed terminal state with a reason
// and releases any in-flight call slot.
func (r *Repository) MarkFailed(ctx context.Context, workflowID int64, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows
		SET status = $2, failure_reason = $3, current_call_id = NULL,
			current_call_ended_at = COALESCE(current_call_ended_at, now()), updated_at = now()
		WHERE id = $1 AND status NOT IN ($4, $5)
	`, workflowID, string(domain.StatusFailed), reason,
		string(domain.StatusCompleted), string(domain.StatusFailed))
	return err
}

// ReleaseFailed satisfies the dispatcher's workflow marker contract.
func (r *Repository) ReleaseFailed(ctx context.Context, workflowID int64, reason string) error {
	return r.MarkFailed(ctx, workflowID, reason)
}

// MarkCompleted moves the workflow to the completed terminal state.
func (r *Repository) MarkCompleted(ctx context.Context, workflowID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE booking_workflows
		SET status = $2, current_call_id = NULL,
			current_call_ended_at = COALESCE(current_call_ended_at, now()), updated_at = now()
		WHERE id = $1
	`, workflowID, string(domain.StatusCompleted))
	return err
}

// Appointment is the confirmed booking created when a workflow completes.
type Appointment struct {
	ID              int64
	WorkflowID      int64
	IncidentID      int64
	WorkerID        int64
	MedicalCenterID int64
	SlotDescription string
	Doctor          string
	CreatedAt       time.Time
}

// CreateAppointment inserts the confirmed appointment record. The workflow id
// is unique so webhook redelivery cannot create a second appointment.
func (r *Repository) CreateAppointment(ctx context.Context, w Workflow, slot domain.TimeSlot) (Appointment, error) {
	var a Appointment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (workflow_id, incident_id, worker_id, medical_center_id,
			slot_description, doctor)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id) DO UPDATE SET slot_description = EXCLUDED.slot_description
		RETURNING id, workflow_id, incident_id, worker_id, medical_center_id,
			slot_description, doctor, created_at
	`, w.ID, w.IncidentID, w.WorkerID, w.MedicalCenterID, slot.Display(), slot.Doctor).Scan(
		&a.ID, &a.WorkflowID, &a.IncidentID, &a.WorkerID, &a.MedicalCenterID,
		&a.SlotDescription, &a.Doctor, &a.CreatedAt,
	)
	return a, err
}
