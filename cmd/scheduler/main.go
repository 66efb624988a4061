package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incident_portal_backend/internal/activity"
	"incident_portal_backend/internal/booking"
	"incident_portal_backend/internal/dispatch"
	"incident_portal_backend/internal/events"
	"incident_portal_backend/internal/scheduler"
	"incident_portal_backend/internal/telephony"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/db"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/phone"
	"incident_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	phones := phone.New(cfg)
	provider := telephony.NewRetellClient(cfg, log)
	if provider == nil {
		log.Warn("RETELL_BASE_URL not configured; outbound calls disabled")
	}

	// Worker-side dispatch wiring (no HTTP handlers required).
	dispatchModule := dispatch.NewModule(pool, provider, phones, eventBus, val, log)
	bookingModule := booking.NewModule(pool, dispatchModule.Service(), dispatchModule.Repository(), cfg, eventBus, val, log)
	dispatchModule.SetWorkflowMarker(bookingModule.Repository())

	activityModule := activity.NewModule(pool, log)
	activityModule.RegisterHandlers(eventBus)

	svc, err := scheduler.New(bookingModule.Service(), cfg, log)
	if err != nil {
		log.Error("failed to initialize scheduler service", "error", err)
		panic("failed to initialize scheduler service: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, svc, dispatchModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return runRetryTicker(gctx, client, cfg.GetRetryPassInterval(), log)
	})

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
	}
}

// runRetryTicker enqueues one retry pass per interval. The pass itself runs
// on the asynq worker so a slow pass never delays the next tick's enqueue.
func runRetryTicker(ctx context.Context, client *scheduler.Client, interval time.Duration, log *logger.Logger) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log.Info("retry ticker started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := client.EnqueuePatientRetryPass(ctx, scheduler.PatientRetryPassPayload{
				TriggeredBy: "scheduler_ticker",
			})
			if err != nil {
				log.Error("enqueue retry pass failed", "error", err)
			}
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
