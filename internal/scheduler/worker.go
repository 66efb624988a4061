package scheduler

import (
	"context"
	"fmt"

	dispatchsvc "incident_portal_backend/internal/dispatch/service"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Dispatcher places the follow-up call legs handled by the worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatchsvc.DispatchRequest) (dispatchsvc.DispatchResult, error)
}

// Worker consumes scheduler tasks from the asynq queue.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	svc        *Service
	dispatcher Dispatcher
	log        *logger.Logger
}

// NewWorker creates the asynq consumer for retry passes and follow-ups.
func NewWorker(cfg config.SchedulerConfig, svc *Service, dispatcher Dispatcher, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		svc:        svc,
		dispatcher: dispatcher,
		log:        log,
	}

	mux.HandleFunc(TaskPatientRetryPass, w.handlePatientRetryPass)
	mux.HandleFunc(TaskIncidentFollowUp, w.handleIncidentFollowUp)

	return w, nil
}

func (w *Worker) handlePatientRetryPass(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePatientRetryPassPayload(task)
	if err != nil {
		return err
	}

	summary, err := w.svc.RunPatientRetryPass(ctx)
	if err != nil {
		return err
	}

	w.log.Info("patient retry pass finished",
		"triggered_by", payload.TriggeredBy,
		"processed", summary.Processed,
		"calls_initiated", summary.CallsInitiated)
	return nil
}

func (w *Worker) handleIncidentFollowUp(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseIncidentFollowUpPayload(task)
	if err != nil {
		return err
	}
	if payload.WorkerPhone == "" {
		w.log.Warn("follow-up skipped, worker has no phone", "incident_id", payload.IncidentID)
		return nil
	}

	incidentID := payload.IncidentID
	_, err = w.dispatcher.Dispatch(ctx, dispatchsvc.DispatchRequest{
		TaskType:    dispatchsvc.TaskFollowUp,
		IncidentID:  &incidentID,
		TargetPhone: payload.WorkerPhone,
		TargetName:  payload.WorkerName,
		CreatedBy:   "scheduler_follow_up",
	})
	return err
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
