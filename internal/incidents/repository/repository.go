// Package repository provides data access for incidents, their staging
// records and the employer/site registries.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStagingNotFound is returned when no staging row exists for a call.
	ErrStagingNotFound = errors.New("staging record not found")
	// ErrIncidentNotFound is returned when an incident lookup yields nothing.
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrEmployerNotFound is returned when an employer lookup yields nothing.
	ErrEmployerNotFound = errors.New("employer not found")
)

// StagingRecord accumulates partial incident fields reported mid-call,
// keyed by the provider call id.
type StagingRecord struct {
	ID                int64
	CallID            string
	EmployerID        *int64
	EmployerName      *string
	SiteID            *int64
	SiteName          *string
	WorkerID          *int64
	WorkerName        *string
	CallerName        *string
	CallerRole        *string
	CallerPosition    *string
	CallerPhone       *string
	InjuryType        *string
	InjuryDescription *string
	BodyPartInjured   *string
	BodySide          *string
	Severity          *string
	DateOfInjury      *string
	TimeOfInjury      *string
	TreatmentReceived *string
	WitnessName       *string
	CallerWasWitness  *bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Incident is the finalized record produced by inbound intake.
type Incident struct {
	ID                int64
	IncidentNumber    string
	SourceCallID      string
	EmployerID        int64
	SiteID            *int64
	WorkerID          *int64
	InjuryType        string
	InjuryDescription string
	BodyPartInjured   string
	BodySide          string
	Severity          string
	DateOfInjury      string
	TimeOfInjury      string
	CaseNotes         string
	Transcript        string
	NeedsReview       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Employer is a registry row used for fuzzy employer resolution.
type Employer struct {
	ID   int64
	Name string
}

// Site is a workplace location scoped to an employer.
type Site struct {
	ID         int64
	EmployerID int64
	Name       string
}

// Repository provides data access for incident intake.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new incidents repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const stagingColumns = `id, call_id, employer_id, employer_name, site_id, site_name,
	worker_id, worker_name, caller_name, caller_role, caller_position, caller_phone,
	injury_type, injury_description, body_part_injured, body_side, severity,
	date_of_injury, time_of_injury, treatment_received, witness_name, caller_was_witness,
	created_at, updated_at`

func scanStaging(row pgx.Row) (StagingRecord, error) {
	var s StagingRecord
	err := row.Scan(
		&s.ID, &s.CallID, &s.EmployerID, &s.EmployerName, &s.SiteID, &s.SiteName,
		&s.WorkerID, &s.WorkerName, &s.CallerName, &s.CallerRole, &s.CallerPosition, &s.CallerPhone,
		&s.InjuryType, &s.InjuryDescription, &s.BodyPartInjured, &s.BodySide, &s.Severity,
		&s.DateOfInjury, &s.TimeOfInjury, &s.TreatmentReceived, &s.WitnessName, &s.CallerWasWitness,
		&s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// StagingFields are the mutable staging columns. Nil fields are left
// untouched by UpsertStaging, so later submissions override only what they
// explicitly supply.
type StagingFields struct {
	EmployerID        *int64
	EmployerName      *string
	SiteID            *int64
	SiteName          *string
	WorkerID          *int64
	WorkerName        *string
	CallerName        *string
	CallerRole        *string
	CallerPosition    *string
	CallerPhone       *string
	InjuryType        *string
	InjuryDescription *string
	BodyPartInjured   *string
	BodySide          *string
	Severity          *string
	DateOfInjury      *string
	TimeOfInjury      *string
	TreatmentReceived *string
	WitnessName       *string
	CallerWasWitness  *bool
}

// UpsertStaging inserts or updates the staging row for a call. The COALESCE
// per column is what preserves earlier values when a later submission omits
// a field.
func (r *Repository) UpsertStaging(ctx context.Context, callID string, f StagingFields) (StagingRecord, error) {
	return scanStaging(r.pool.QueryRow(ctx, `
		INSERT INTO incident_staging (call_id, employer_id, employer_name, site_id, site_name,
			worker_id, worker_name, caller_name, caller_role, caller_position, caller_phone,
			injury_type, injury_description, body_part_injured, body_side, severity,
			date_of_injury, time_of_injury, treatment_received, witness_name, caller_was_witness)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (call_id) DO UPDATE SET
			employer_id        = COALESCE(EXCLUDED.employer_id, incident_staging.employer_id),
			employer_name      = COALESCE(EXCLUDED.employer_name, incident_staging.employer_name),
			site_id            = COALESCE(EXCLUDED.site_id, incident_staging.site_id),
			site_name          = COALESCE(EXCLUDED.site_name, incident_staging.site_name),
			worker_id          = COALESCE(EXCLUDED.worker_id, incident_staging.worker_id),
			worker_name        = COALESCE(EXCLUDED.worker_name, incident_staging.worker_name),
			caller_name        = COALESCE(EXCLUDED.caller_name, incident_staging.caller_name),
			caller_role        = COALESCE(EXCLUDED.caller_role, incident_staging.caller_role),
			caller_position    = COALESCE(EXCLUDED.caller_position, incident_staging.caller_position),
			caller_phone       = COALESCE(EXCLUDED.caller_phone, incident_staging.caller_phone),
			injury_type        = COALESCE(EXCLUDED.injury_type, incident_staging.injury_type),
			injury_description = COALESCE(EXCLUDED.injury_description, incident_staging.injury_description),
			body_part_injured  = COALESCE(EXCLUDED.body_part_injured, incident_staging.body_part_injured),
			body_side          = COALESCE(EXCLUDED.body_side, incident_staging.body_side),
			severity           = COALESCE(EXCLUDED.severity, incident_staging.severity),
			date_of_injury     = COALESCE(EXCLUDED.date_of_injury, incident_staging.date_of_injury),
			time_of_injury     = COALESCE(EXCLUDED.time_of_injury, incident_staging.time_of_injury),
			treatment_received = COALESCE(EXCLUDED.treatment_received, incident_staging.treatment_received),
			witness_name       = COALESCE(EXCLUDED.witness_name, incident_staging.witness_name),
			caller_was_witness = COALESCE(EXCLUDED.caller_was_witness, incident_staging.caller_was_witness),
			updated_at         = now()
		RETURNING `+stagingColumns+`
	`, callID, f.EmployerID, f.EmployerName, f.SiteID, f.SiteName,
		f.WorkerID, f.WorkerName, f.CallerName, f.CallerRole, f.CallerPosition, f.CallerPhone,
		f.InjuryType, f.InjuryDescription, f.BodyPartInjured, f.BodySide, f.Severity,
		f.DateOfInjury, f.TimeOfInjury, f.TreatmentReceived, f.WitnessName, f.CallerWasWitness))
}

// GetStaging returns the staging row for a call, if any.
func (r *Repository) GetStaging(ctx context.Context, callID string) (StagingRecord, error) {
	s, err := scanStaging(r.pool.QueryRow(ctx, `
		SELECT `+stagingColumns+` FROM incident_staging WHERE call_id = $1
	`, callID))
	if errors.Is(err, pgx.ErrNoRows) {
		return StagingRecord{}, ErrStagingNotFound
	}
	return s, err
}

const incidentColumns = `id, incident_number, source_call_id, employer_id, site_id, worker_id,
	injury_type, injury_description, body_part_injured, body_side, severity,
	date_of_injury, time_of_injury, case_notes, transcript, needs_review, created_at, updated_at`

func scanIncident(row pgx.Row) (Incident, error) {
	var i Incident
	err := row.Scan(
		&i.ID, &i.IncidentNumber, &i.SourceCallID, &i.EmployerID, &i.SiteID, &i.WorkerID,
		&i.InjuryType, &i.InjuryDescription, &i.BodyPartInjured, &i.BodySide, &i.Severity,
		&i.DateOfInjury, &i.TimeOfInjury, &i.CaseNotes, &i.Transcript, &i.NeedsReview,
		&i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

// FindIncidentByCallID returns the incident finalized from a call, if one
// exists. This is the idempotence check for webhook redelivery.
func (r *Repository) FindIncidentByCallID(ctx context.Context, callID string) (Incident, error) {
	i, err := scanIncident(r.pool.QueryRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents WHERE source_call_id = $1
	`, callID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Incident{}, ErrIncidentNotFound
	}
	return i, err
}

// CreateIncidentParams holds the fields for a finalized incident.
type CreateIncidentParams struct {
	IncidentNumber    string
	SourceCallID      string
	EmployerID        int64
	SiteID            *int64
	WorkerID          *int64
	InjuryType        string
	InjuryDescription string
	BodyPartInjured   string
	BodySide          string
	Severity          string
	DateOfInjury      string
	TimeOfInjury      string
	CaseNotes         string
	Transcript        string
	NeedsReview       bool
}

// CreateIncident inserts the finalized incident.
func (r *Repository) CreateIncident(ctx context.Context, p CreateIncidentParams) (Incident, error) {
	return scanIncident(r.pool.QueryRow(ctx, `
		INSERT INTO incidents (incident_number, source_call_id, employer_id, site_id, worker_id,
			injury_type, injury_description, body_part_injured, body_side, severity,
			date_of_injury, time_of_injury, case_notes, transcript, needs_review)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+incidentColumns+`
	`, p.IncidentNumber, p.SourceCallID, p.EmployerID, p.SiteID, p.WorkerID,
		p.InjuryType, p.InjuryDescription, p.BodyPartInjured, p.BodySide, p.Severity,
		p.DateOfInjury, p.TimeOfInjury, p.CaseNotes, p.Transcript, p.NeedsReview))
}

// IncidentNumberExists reports whether a generated number is already taken.
func (r *Repository) IncidentNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM incidents WHERE incident_number = $1)
	`, number).Scan(&exists)
	return exists, err
}

// ListEmployers returns the employer registry for fuzzy resolution.
func (r *Repository) ListEmployers(ctx context.Context) ([]Employer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM employers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employers []Employer
	for rows.Next() {
		var e Employer
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		employers = append(employers, e)
	}
	return employers, rows.Err()
}

// GetEmployer returns a single employer.
func (r *Repository) GetEmployer(ctx context.Context, id int64) (Employer, error) {
	var e Employer
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM employers WHERE id = $1`, id).Scan(&e.ID, &e.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employer{}, ErrEmployerNotFound
	}
	return e, err
}

// ListSites returns an employer's sites for fuzzy resolution.
func (r *Repository) ListSites(ctx context.Context, employerID int64) ([]Site, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, employer_id, name FROM sites WHERE employer_id = $1 ORDER BY name
	`, employerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var s Site
		if err := rows.Scan(&s.ID, &s.EmployerID, &s.Name); err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// CreateSite inserts a new site under an employer.
func (r *Repository) CreateSite(ctx context.Context, employerID int64, name string) (Site, error) {
	var s Site
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sites (employer_id, name) VALUES ($1, $2)
		RETURNING id, employer_id, name
	`, employerID, name).Scan(&s.ID, &s.EmployerID, &s.Name)
	return s, err
}
