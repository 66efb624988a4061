// Package repository provides data access for the worker registry.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrWorkerNotFound is returned when no worker matches the lookup.
var ErrWorkerNotFound = errors.New("worker not found")

// Worker is a row in the worker registry.
type Worker struct {
	ID           int64
	EmployerID   *int64
	FirstName    string
	LastName     string
	MobileNumber string
	Occupation   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName returns the display name used for matching and call variables.
func (w Worker) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(w.FirstName) + " " + strings.TrimSpace(w.LastName))
}

// Repository provides data access for workers.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new workers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const workerColumns = `id, employer_id, first_name, last_name, mobile_number, occupation, is_active, created_at, updated_at`

func scanWorker(row pgx.Row) (Worker, error) {
	var w Worker
	err := row.Scan(
		&w.ID, &w.EmployerID, &w.FirstName, &w.LastName,
		&w.MobileNumber, &w.Occupation, &w.IsActive, &w.CreatedAt, &w.UpdatedAt,
	)
	return w, err
}

// ListActive returns all active workers, optionally scoped to an employer.
func (r *Repository) ListActive(ctx context.Context, employerID *int64) ([]Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers WHERE is_active = true`
	args := []any{}
	if employerID != nil {
		query += ` AND employer_id = $1`
		args = append(args, *employerID)
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// GetByID returns a single worker.
func (r *Repository) GetByID(ctx context.Context, id int64) (Worker, error) {
	w, err := scanWorker(r.pool.QueryRow(ctx, `
		SELECT `+workerColumns+` FROM workers WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Worker{}, ErrWorkerNotFound
	}
	return w, err
}

// FindByPhone returns the active worker with the given normalized mobile
// number, if any.
func (r *Repository) FindByPhone(ctx context.Context, phone string) (Worker, error) {
	w, err := scanWorker(r.pool.QueryRow(ctx, `
		SELECT `+workerColumns+` FROM workers
		WHERE mobile_number = $1 AND is_active = true
		ORDER BY id
		LIMIT 1
	`, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return Worker{}, ErrWorkerNotFound
	}
	return w, err
}

// CreateWorkerParams holds the fields for a new worker record.
type CreateWorkerParams struct {
	EmployerID   *int64
	FirstName    string
	LastName     string
	MobileNumber string
	Occupation   string
}

// Create inserts a new worker record.
func (r *Repository) Create(ctx context.Context, params CreateWorkerParams) (Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `
		INSERT INTO workers (employer_id, first_name, last_name, mobile_number, occupation, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING `+workerColumns+`
	`, params.EmployerID, params.FirstName, params.LastName, params.MobileNumber, params.Occupation))
}
