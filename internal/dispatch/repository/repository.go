// Package repository provides data access for voice tasks and call history.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVoiceTaskNotFound is returned when a voice task lookup yields nothing.
var ErrVoiceTaskNotFound = errors.New("voice task not found")

// Task statuses.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Call outcomes recorded in call history.
const (
	OutcomeInProgress = "in_progress"
	OutcomeCompleted  = "completed"
	OutcomeNoAnswer   = "no_answer"
	OutcomeFailed     = "failed"
)

// VoiceTask is one outbound call attempt.
type VoiceTask struct {
	ID                int64
	IncidentID        *int64
	TaskType          string
	Priority          string
	TargetPhone       string
	TargetName        string
	BookingWorkflowID *int64
	ContextData       map[string]any
	Status            string
	RetellCallID      *string
	Error             *string
	ScheduledAt       *time.Time
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CallHistoryRecord is the append-only log entry for a dispatched call leg.
type CallHistoryRecord struct {
	ID             int64
	WorkflowID     int64
	CallSequence   int
	CallTarget     string
	TargetPhone    string
	TargetName     string
	TaskType       string
	ProviderCallID string
	VoiceTaskID    int64
	StartedAt      time.Time
	EndedAt        *time.Time
	Outcome        string
}

// Repository provides data access for dispatch records.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new dispatch repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const voiceTaskColumns = `id, incident_id, task_type, priority, target_phone, target_name,
	booking_workflow_id, context_data, status, retell_call_id, error, scheduled_at,
	created_by, created_at, updated_at`

func scanVoiceTask(row pgx.Row) (VoiceTask, error) {
	var t VoiceTask
	err := row.Scan(
		&t.ID, &t.IncidentID, &t.TaskType, &t.Priority, &t.TargetPhone, &t.TargetName,
		&t.BookingWorkflowID, &t.ContextData, &t.Status, &t.RetellCallID, &t.Error,
		&t.ScheduledAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// CreateTaskParams holds the fields for a new voice task.
type CreateTaskParams struct {
	IncidentID        *int64
	TaskType          string
	Priority          string
	TargetPhone       string
	TargetName        string
	BookingWorkflowID *int64
	ContextData       map[string]any
	ScheduledAt       *time.Time
	CreatedBy         string
}

// CreateTask inserts a pending voice task.
func (r *Repository) CreateTask(ctx context.Context, params CreateTaskParams) (VoiceTask, error) {
	if params.Priority == "" {
		params.Priority = "normal"
	}
	return scanVoiceTask(r.pool.QueryRow(ctx, `
		INSERT INTO voice_tasks (incident_id, task_type, priority, target_phone, target_name,
			booking_workflow_id, context_data, status, scheduled_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '`+TaskStatusPending+`', $8, $9)
		RETURNING `+voiceTaskColumns+`
	`, params.IncidentID, params.TaskType, params.Priority, params.TargetPhone, params.TargetName,
		params.BookingWorkflowID, params.ContextData, params.ScheduledAt, params.CreatedBy))
}

// GetTask returns a single voice task.
func (r *Repository) GetTask(ctx context.Context, id int64) (VoiceTask, error) {
	t, err := scanVoiceTask(r.pool.QueryRow(ctx, `
		SELECT `+voiceTaskColumns+` FROM voice_tasks WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return VoiceTask{}, ErrVoiceTaskNotFound
	}
	return t, err
}

// MarkTaskInProgress records the provider call id once the call is placed.
func (r *Repository) MarkTaskInProgress(ctx context.Context, id int64, providerCallID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE voice_tasks
		SET status = '`+TaskStatusInProgress+`', retell_call_id = $2, updated_at = now()
		WHERE id = $1
	`, id, providerCallID)
	return err
}

// MarkTaskFailed records a dispatch failure with its error text.
func (r *Repository) MarkTaskFailed(ctx context.Context, id int64, errText string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE voice_tasks
		SET status = '`+TaskStatusFailed+`', error = $2, updated_at = now()
		WHERE id = $1
	`, id, errText)
	return err
}

// MarkTaskCompleted closes a task after its call finished.
func (r *Repository) MarkTaskCompleted(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE voice_tasks
		SET status = '`+TaskStatusCompleted+`', updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// NextCallSequence derives the next 1-based sequence number for a workflow
// from the persisted task count, so numbering survives restarts and retries.
func (r *Repository) NextCallSequence(ctx context.Context, workflowID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM voice_tasks WHERE booking_workflow_id = $1
	`, workflowID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

// RecordCallParams holds the fields for a new call history entry.
type RecordCallParams struct {
	WorkflowID     int64
	CallSequence   int
	CallTarget     string
	TargetPhone    string
	TargetName     string
	TaskType       string
	ProviderCallID string
	VoiceTaskID    int64
}

// RecordCall appends a call history entry with outcome in_progress.
func (r *Repository) RecordCall(ctx context.Context, params RecordCallParams) (CallHistoryRecord, error) {
	var rec CallHistoryRecord
	err := r.pool.QueryRow(ctx, `
		INSERT INTO call_history (workflow_id, call_sequence, call_target, target_phone,
			target_name, task_type, provider_call_id, voice_task_id, started_at, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), '`+OutcomeInProgress+`')
		RETURNING id, workflow_id, call_sequence, call_target, target_phone, target_name,
			task_type, provider_call_id, voice_task_id, started_at, ended_at, outcome
	`, params.WorkflowID, params.CallSequence, params.CallTarget, params.TargetPhone,
		params.TargetName, params.TaskType, params.ProviderCallID, params.VoiceTaskID).Scan(
		&rec.ID, &rec.WorkflowID, &rec.CallSequence, &rec.CallTarget, &rec.TargetPhone,
		&rec.TargetName, &rec.TaskType, &rec.ProviderCallID, &rec.VoiceTaskID,
		&rec.StartedAt, &rec.EndedAt, &rec.Outcome,
	)
	return rec, err
}

// CompleteCall closes the call history entry for a provider call id.
func (r *Repository) CompleteCall(ctx context.Context, providerCallID, outcome string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE call_history
		SET ended_at = now(), outcome = $2
		WHERE provider_call_id = $1 AND ended_at IS NULL
	`, providerCallID, outcome)
	return err
}

// CompleteTaskByCallID closes the voice task linked to a provider call id.
func (r *Repository) CompleteTaskByCallID(ctx context.Context, providerCallID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE voice_tasks
		SET status = '`+TaskStatusCompleted+`', updated_at = now()
		WHERE retell_call_id = $1 AND status = '`+TaskStatusInProgress+`'
	`, providerCallID)
	return err
}

// ListCallHistory returns a workflow's call log ordered by sequence.
func (r *Repository) ListCallHistory(ctx context.Context, workflowID int64) ([]CallHistoryRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workflow_id, call_sequence, call_target, target_phone, target_name,
			task_type, provider_call_id, voice_task_id, started_at, ended_at, outcome
		FROM call_history
		WHERE workflow_id = $1
		ORDER BY call_sequence
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CallHistoryRecord
	for rows.Next() {
		var rec CallHistoryRecord
		if err := rows.Scan(
			&rec.ID, &rec.WorkflowID, &rec.CallSequence, &rec.CallTarget, &rec.TargetPhone,
			&rec.TargetName, &rec.TaskType, &rec.ProviderCallID, &rec.VoiceTaskID,
			&rec.StartedAt, &rec.EndedAt, &rec.Outcome,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
