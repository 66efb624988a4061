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
	apphttp "incident_portal_backend/internal/http"
	"incident_portal_backend/internal/http/router"
	"incident_portal_backend/internal/incidents"
	incidentssvc "incident_portal_backend/internal/incidents/service"
	"incident_portal_backend/internal/scheduler"
	"incident_portal_backend/internal/telephony"
	"incident_portal_backend/internal/workers"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/db"
	"incident_portal_backend/platform/dedup"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/phone"
	"incident_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	phones := phone.New(cfg)
	provider := telephony.NewRetellClient(cfg, log)
	if provider == nil {
		log.Warn("RETELL_BASE_URL not configured; outbound calls disabled")
	}

	deduper := initDeduper(cfg, log)
	defer func() { _ = deduper.Close() }()

	followUps, closeFollowUps := initFollowUpScheduler(cfg, log)
	if closeFollowUps != nil {
		defer closeFollowUps()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	workersModule := workers.NewModule(pool, cfg, val, log)
	dispatchModule := dispatch.NewModule(pool, provider, phones, eventBus, val, log)
	bookingModule := booking.NewModule(pool, dispatchModule.Service(), dispatchModule.Repository(), cfg, eventBus, val, log)

	// Break the dispatch <-> booking cycle: dispatch claims workflows through
	// an interface the booking repository satisfies.
	dispatchModule.SetWorkflowMarker(bookingModule.Repository())

	schedulerModule, err := scheduler.NewModule(bookingModule.Service(), cfg, log)
	if err != nil {
		log.Error("failed to initialize scheduler module", "error", err)
		panic("failed to initialize scheduler module: " + err.Error())
	}

	incidentsModule := incidents.NewModule(pool, workersModule.Repository(), phones, deduper, followUps, eventBus, cfg, val, log)

	// Activity module subscribes to domain events (not HTTP-facing)
	activityModule := activity.NewModule(pool, log)
	activityModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			workersModule,
			dispatchModule,
			bookingModule,
			schedulerModule,
			incidentsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initDeduper(cfg config.RedisConfig, log *logger.Logger) *dedup.Deduper {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; webhook dedup disabled")
		return nil
	}

	deduper, err := dedup.New(cfg.GetRedisURL(), cfg.GetWebhookDedupTTL())
	if err != nil {
		log.Error("failed to initialize webhook dedup store", "error", err)
		return nil
	}
	return deduper
}

func initFollowUpScheduler(cfg config.SchedulerConfig, log *logger.Logger) (incidentssvc.FollowUpScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; incident follow-ups disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize follow-up scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
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
