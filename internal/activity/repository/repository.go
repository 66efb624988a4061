// Package repository persists the append-only activity log.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one activity log row.
type Entry struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   int64
	IncidentID *int64
	Details    map[string]any
}

// Repository provides data access for the activity log.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new activity repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends one entry. Details are stored as jsonb.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO activity_log (actor, action, entity_type, entity_id, incident_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Actor, e.Action, e.EntityType, e.EntityID, e.IncidentID, payload)
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}
