// Package activity records an audit trail of call and workflow events.
package activity

import (
	"context"

	"incident_portal_backend/internal/activity/repository"
	"incident_portal_backend/internal/events"
	"incident_portal_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const systemActor = "system"

// Recorder is the persistence surface the module writes through.
type Recorder interface {
	Record(ctx context.Context, e repository.Entry) error
}

// Module subscribes to domain events and appends them to the activity log.
type Module struct {
	recorder Recorder
	log      *logger.Logger
}

// NewModule creates a new activity module.
func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	return &Module{
		recorder: repository.New(pool),
		log:      log,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "activity"
}

// RegisterHandlers subscribes to all audited domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.CallDispatched{}.EventName(), m)
	bus.Subscribe(events.CallDispatchFailed{}.EventName(), m)
	bus.Subscribe(events.WorkflowCompleted{}.EventName(), m)
	bus.Subscribe(events.WorkflowFailed{}.EventName(), m)
	bus.Subscribe(events.IncidentCreated{}.EventName(), m)

	m.log.Info("activity module registered event handlers")
}

// Handle routes events to the appropriate log entry.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	var entry repository.Entry

	switch e := event.(type) {
	case events.CallDispatched:
		entry = repository.Entry{
			Actor:      e.CreatedBy,
			Action:     "call_dispatched",
			EntityType: "voice_task",
			EntityID:   e.VoiceTaskID,
			IncidentID: optionalID(e.IncidentID),
			Details: map[string]any{
				"task_type":     e.TaskType,
				"call_id":       e.ProviderCallID,
				"call_sequence": e.CallSequence,
				"target_name":   e.TargetName,
				"target_phone":  e.TargetPhone,
				"workflow_id":   e.WorkflowID,
			},
		}
	case events.CallDispatchFailed:
		entry = repository.Entry{
			Actor:      systemActor,
			Action:     "call_dispatch_failed",
			EntityType: "voice_task",
			EntityID:   e.VoiceTaskID,
			IncidentID: optionalID(e.IncidentID),
			Details: map[string]any{
				"task_type":   e.TaskType,
				"workflow_id": e.WorkflowID,
				"reason":      e.Reason,
			},
		}
	case events.WorkflowCompleted:
		entry = repository.Entry{
			Actor:      systemActor,
			Action:     "workflow_completed",
			EntityType: "booking_workflow",
			EntityID:   e.WorkflowID,
			IncidentID: optionalID(e.IncidentID),
			Details: map[string]any{
				"confirmed_slot": e.ConfirmedSlot,
			},
		}
	case events.WorkflowFailed:
		entry = repository.Entry{
			Actor:      systemActor,
			Action:     "workflow_failed",
			EntityType: "booking_workflow",
			EntityID:   e.WorkflowID,
			IncidentID: optionalID(e.IncidentID),
			Details: map[string]any{
				"reason": e.Reason,
			},
		}
	case events.IncidentCreated:
		entry = repository.Entry{
			Actor:      systemActor,
			Action:     "incident_created",
			EntityType: "incident",
			EntityID:   e.IncidentID,
			IncidentID: optionalID(e.IncidentID),
			Details: map[string]any{
				"incident_number": e.IncidentNumber,
				"employer_id":     e.EmployerID,
				"worker_id":       e.WorkerID,
				"source_call_id":  e.SourceCallID,
				"needs_review":    e.NeedsReview,
			},
		}
	default:
		return nil
	}

	if err := m.recorder.Record(ctx, entry); err != nil {
		m.log.Error("record activity entry", "action", entry.Action, "error", err)
		return err
	}
	return nil
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
