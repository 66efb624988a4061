// Package service implements incident intake: mid-call staging submissions
// and the finalize step that merges them into a persisted incident.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	appevents "incident_portal_backend/internal/events"
	"incident_portal_backend/internal/incidents/repository"
	"incident_portal_backend/internal/scheduler"
	workersrepo "incident_portal_backend/internal/workers/repository"
	workerssvc "incident_portal_backend/internal/workers/service"
	"incident_portal_backend/platform/apperr"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/dedup"
	"incident_portal_backend/platform/logger"
	"incident_portal_backend/platform/phone"
)

// employerMatchThreshold is the minimum similarity for a fuzzy employer or
// site name match.
const employerMatchThreshold = 0.6

// followUpDelay is how long after intake the default follow-up call is
// scheduled.
const followUpDelay = 24 * time.Hour

// IntakeStore persists staging records and incidents. Satisfied by
// repository.Repository.
type IntakeStore interface {
	UpsertStaging(ctx context.Context, callID string, f repository.StagingFields) (repository.StagingRecord, error)
	GetStaging(ctx context.Context, callID string) (repository.StagingRecord, error)
	FindIncidentByCallID(ctx context.Context, callID string) (repository.Incident, error)
	CreateIncident(ctx context.Context, p repository.CreateIncidentParams) (repository.Incident, error)
	IncidentNumberExists(ctx context.Context, number string) (bool, error)
	ListEmployers(ctx context.Context) ([]repository.Employer, error)
	GetEmployer(ctx context.Context, id int64) (repository.Employer, error)
	ListSites(ctx context.Context, employerID int64) ([]repository.Site, error)
	CreateSite(ctx context.Context, employerID int64, name string) (repository.Site, error)
}

// WorkerDirectory resolves and creates worker records. Satisfied by the
// workers repository.
type WorkerDirectory interface {
	FindByPhone(ctx context.Context, phone string) (workersrepo.Worker, error)
	Create(ctx context.Context, params workersrepo.CreateWorkerParams) (workersrepo.Worker, error)
}

// FollowUpScheduler queues the default follow-up call. Satisfied by the
// scheduler client; nil disables follow-ups.
type FollowUpScheduler interface {
	ScheduleIncidentFollowUp(ctx context.Context, payload scheduler.IncidentFollowUpPayload, runAt time.Time) error
}

// Service runs incident intake.
type Service struct {
	store     IntakeStore
	workers   WorkerDirectory
	phones    *phone.Normalizer
	deduper   *dedup.Deduper
	followUps FollowUpScheduler
	bus       appevents.Bus
	cfg       config.IntakeConfig
	log       *logger.Logger

	now     func() time.Time
	randInt func(n int) int
}

// New creates a new intake service.
func New(store IntakeStore, workers WorkerDirectory, phones *phone.Normalizer, deduper *dedup.Deduper, followUps FollowUpScheduler, bus appevents.Bus, cfg config.IntakeConfig, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		workers:   workers,
		phones:    phones,
		deduper:   deduper,
		followUps: followUps,
		bus:       bus,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		randInt:   rand.Intn,
	}
}

// SubmitStaging handles one in-call submit invocation. Persistence failures
// here are swallowed on purpose: interrupting a live phone call over a
// storage hiccup costs more than losing one partial submission, and the
// finalize step re-reads whatever did land. The failure is logged so it is
// not invisible.
func (s *Service) SubmitStaging(ctx context.Context, body map[string]any) (string, error) {
	callID, fields := extractSubmission(body)
	if callID == "" {
		return "", apperr.Validation("call_id is required")
	}

	record, err := s.store.UpsertStaging(ctx, callID, fields)
	if err != nil {
		s.log.Warn("staging persistence failed, call continues",
			"call_id", callID, "error", err)
		return confirmationSentence(fields), nil
	}
	return confirmationSentence(stagingFields(record)), nil
}

// confirmationSentence builds the spoken acknowledgement from whichever
// identifying fields are present.
func confirmationSentence(f repository.StagingFields) string {
	var parts []string
	if f.WorkerName != nil {
		parts = append(parts, *f.WorkerName)
	}
	if f.InjuryType != nil {
		parts = append(parts, *f.InjuryType)
	}
	if f.BodyPartInjured != nil {
		parts = append(parts, *f.BodyPartInjured)
	}
	if f.SiteName != nil {
		parts = append(parts, "at "+*f.SiteName)
	}
	if len(parts) == 0 {
		return "Details recorded."
	}
	return "Recorded: " + strings.Join(parts, ", ") + "."
}

// FinalizeParams is the call-completion payload for intake.
type FinalizeParams struct {
	CallID        string
	ExtractedData map[string]any
	Transcript    string
}

// FinalizeResult identifies the incident produced (or found) for a call.
type FinalizeResult struct {
	IncidentID     int64
	IncidentNumber string
	WorkerID       *int64
	NeedsReview    bool
	AlreadyExisted bool
}

// FinalizeInbound merges the staging record with the final extraction and
// creates the incident. Finalizing the same call id twice yields the same
// incident: redis spots redeliveries fast, and the source_call_id lookup is
// the authoritative guard either way.
func (s *Service) FinalizeInbound(ctx context.Context, params FinalizeParams) (FinalizeResult, error) {
	if strings.TrimSpace(params.CallID) == "" {
		return FinalizeResult{}, apperr.Validation("call_id is required")
	}

	if !s.deduper.FirstSeen(ctx, "intake:"+params.CallID) {
		s.log.Info("duplicate intake webhook", "call_id", params.CallID)
	}
	if existing, err := s.store.FindIncidentByCallID(ctx, params.CallID); err == nil {
		return resultFrom(existing, true), nil
	} else if !errors.Is(err, repository.ErrIncidentNotFound) {
		return FinalizeResult{}, err
	}

	merged := s.mergedFields(ctx, params)

	employer, needsReview, err := s.resolveEmployer(ctx, merged)
	if err != nil {
		return FinalizeResult{}, err
	}

	siteID, err := s.resolveSite(ctx, employer.ID, merged)
	if err != nil {
		return FinalizeResult{}, err
	}

	worker, err := s.resolveWorker(ctx, employer.ID, merged)
	if err != nil {
		return FinalizeResult{}, err
	}

	number, err := s.generateIncidentNumber(ctx)
	if err != nil {
		return FinalizeResult{}, err
	}

	var workerID *int64
	if worker != nil {
		workerID = &worker.ID
	}

	incident, err := s.store.CreateIncident(ctx, repository.CreateIncidentParams{
		IncidentNumber:    number,
		SourceCallID:      params.CallID,
		EmployerID:        employer.ID,
		SiteID:            siteID,
		WorkerID:          workerID,
		InjuryType:        deref(merged.InjuryType),
		InjuryDescription: deref(merged.InjuryDescription),
		BodyPartInjured:   deref(merged.BodyPartInjured),
		BodySide:          deref(merged.BodySide),
		Severity:          deref(merged.Severity),
		DateOfInjury:      deref(merged.DateOfInjury),
		TimeOfInjury:      deref(merged.TimeOfInjury),
		CaseNotes:         foldCaseNotes(merged),
		Transcript:        params.Transcript,
		NeedsReview:       needsReview,
	})
	if err != nil {
		// A concurrent redelivery may have won the insert race.
		if existing, lookupErr := s.store.FindIncidentByCallID(ctx, params.CallID); lookupErr == nil {
			return resultFrom(existing, true), nil
		}
		return FinalizeResult{}, fmt.Errorf("create incident: %w", err)
	}

	evt := appevents.IncidentCreated{
		BaseEvent:      appevents.NewBaseEvent(),
		IncidentID:     incident.ID,
		IncidentNumber: incident.IncidentNumber,
		EmployerID:     incident.EmployerID,
		SourceCallID:   incident.SourceCallID,
		NeedsReview:    incident.NeedsReview,
	}
	if workerID != nil {
		evt.WorkerID = *workerID
	}
	s.bus.Publish(ctx, evt)

	s.scheduleFollowUp(ctx, incident, worker)

	return resultFrom(incident, false), nil
}

func resultFrom(i repository.Incident, existed bool) FinalizeResult {
	return FinalizeResult{
		IncidentID:     i.ID,
		IncidentNumber: i.IncidentNumber,
		WorkerID:       i.WorkerID,
		NeedsReview:    i.NeedsReview,
		AlreadyExisted: existed,
	}
}

// mergedFields combines the final extraction with the staging record; the
// final extraction wins per field.
func (s *Service) mergedFields(ctx context.Context, params FinalizeParams) repository.StagingFields {
	_, extracted := extractSubmission(params.ExtractedData)

	staging, err := s.store.GetStaging(ctx, params.CallID)
	if err != nil {
		if !errors.Is(err, repository.ErrStagingNotFound) {
			s.log.DatabaseError("read staging record", err)
		}
		return extracted
	}
	return mergeFields(extracted, stagingFields(staging))
}

func mergeFields(primary, fallback repository.StagingFields) repository.StagingFields {
	out := primary
	if out.EmployerID == nil {
		out.EmployerID = fallback.EmployerID
	}
	if out.EmployerName == nil {
		out.EmployerName = fallback.EmployerName
	}
	if out.SiteID == nil {
		out.SiteID = fallback.SiteID
	}
	if out.SiteName == nil {
		out.SiteName = fallback.SiteName
	}
	if out.WorkerID == nil {
		out.WorkerID = fallback.WorkerID
	}
	if out.WorkerName == nil {
		out.WorkerName = fallback.WorkerName
	}
	if out.CallerName == nil {
		out.CallerName = fallback.CallerName
	}
	if out.CallerRole == nil {
		out.CallerRole = fallback.CallerRole
	}
	if out.CallerPosition == nil {
		out.CallerPosition = fallback.CallerPosition
	}
	if out.CallerPhone == nil {
		out.CallerPhone = fallback.CallerPhone
	}
	if out.InjuryType == nil {
		out.InjuryType = fallback.InjuryType
	}
	if out.InjuryDescription == nil {
		out.InjuryDescription = fallback.InjuryDescription
	}
	if out.BodyPartInjured == nil {
		out.BodyPartInjured = fallback.BodyPartInjured
	}
	if out.BodySide == nil {
		out.BodySide = fallback.BodySide
	}
	if out.Severity == nil {
		out.Severity = fallback.Severity
	}
	if out.DateOfInjury == nil {
		out.DateOfInjury = fallback.DateOfInjury
	}
	if out.TimeOfInjury == nil {
		out.TimeOfInjury = fallback.TimeOfInjury
	}
	if out.TreatmentReceived == nil {
		out.TreatmentReceived = fallback.TreatmentReceived
	}
	if out.WitnessName == nil {
		out.WitnessName = fallback.WitnessName
	}
	if out.CallerWasWitness == nil {
		out.CallerWasWitness = fallback.CallerWasWitness
	}
	return out
}

func stagingFields(r repository.StagingRecord) repository.StagingFields {
	return repository.StagingFields{
		EmployerID:        r.EmployerID,
		EmployerName:      r.EmployerName,
		SiteID:            r.SiteID,
		SiteName:          r.SiteName,
		WorkerID:          r.WorkerID,
		WorkerName:        r.WorkerName,
		CallerName:        r.CallerName,
		CallerRole:        r.CallerRole,
		CallerPosition:    r.CallerPosition,
		CallerPhone:       r.CallerPhone,
		InjuryType:        r.InjuryType,
		InjuryDescription: r.InjuryDescription,
		BodyPartInjured:   r.BodyPartInjured,
		BodySide:          r.BodySide,
		Severity:          r.Severity,
		DateOfInjury:      r.DateOfInjury,
		TimeOfInjury:      r.TimeOfInjury,
		TreatmentReceived: r.TreatmentReceived,
		WitnessName:       r.WitnessName,
		CallerWasWitness:  r.CallerWasWitness,
	}
}

// resolveEmployer picks the employer by id, then fuzzy name, then the
// configured fallback. Fallback incidents are flagged for manual review so
// misattribution is visible instead of silent.
func (s *Service) resolveEmployer(ctx context.Context, f repository.StagingFields) (repository.Employer, bool, error) {
	if f.EmployerID != nil {
		employer, err := s.store.GetEmployer(ctx, *f.EmployerID)
		if err == nil {
			return employer, false, nil
		}
		if !errors.Is(err, repository.ErrEmployerNotFound) {
			return repository.Employer{}, false, err
		}
	}

	if f.EmployerName != nil {
		employers, err := s.store.ListEmployers(ctx)
		if err != nil {
			return repository.Employer{}, false, err
		}
		var best repository.Employer
		bestScore := 0.0
		for _, e := range employers {
			if score := workerssvc.NameSimilarity(*f.EmployerName, e.Name); score > bestScore {
				best, bestScore = e, score
			}
		}
		if bestScore >= employerMatchThreshold {
			return best, false, nil
		}
	}

	fallback, err := s.store.GetEmployer(ctx, s.cfg.GetFallbackEmployerID())
	if err != nil {
		if errors.Is(err, repository.ErrEmployerNotFound) {
			fallback = repository.Employer{ID: s.cfg.GetFallbackEmployerID()}
		} else {
			return repository.Employer{}, false, err
		}
	}
	s.log.Warn("employer unresolved, using fallback",
		"employer_id", fallback.ID, "spoken_name", deref(f.EmployerName))
	return fallback, true, nil
}

// resolveSite resolves the site within the employer's scope, creating it
// when a name was given but nothing matches.
func (s *Service) resolveSite(ctx context.Context, employerID int64, f repository.StagingFields) (*int64, error) {
	if f.SiteID != nil {
		return f.SiteID, nil
	}
	if f.SiteName == nil {
		return nil, nil
	}

	sites, err := s.store.ListSites(ctx, employerID)
	if err != nil {
		return nil, err
	}
	var best repository.Site
	bestScore := 0.0
	for _, site := range sites {
		if score := workerssvc.NameSimilarity(*f.SiteName, site.Name); score > bestScore {
			best, bestScore = site, score
		}
	}
	if bestScore >= employerMatchThreshold {
		return &best.ID, nil
	}

	created, err := s.store.CreateSite(ctx, employerID, *f.SiteName)
	if err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	return &created.ID, nil
}

// resolveWorker looks the worker up by phone first; otherwise a new record
// is created from the spoken name, split on whitespace.
func (s *Service) resolveWorker(ctx context.Context, employerID int64, f repository.StagingFields) (*workersrepo.Worker, error) {
	if f.WorkerID != nil {
		return &workersrepo.Worker{ID: *f.WorkerID}, nil
	}

	var phoneNumber string
	if f.CallerPhone != nil {
		phoneNumber = s.phones.Normalize(*f.CallerPhone)
		w, err := s.workers.FindByPhone(ctx, phoneNumber)
		if err == nil {
			return &w, nil
		}
		if !errors.Is(err, workersrepo.ErrWorkerNotFound) {
			return nil, err
		}
	}

	if f.WorkerName == nil {
		return nil, nil
	}

	first, last := splitName(*f.WorkerName)
	w, err := s.workers.Create(ctx, workersrepo.CreateWorkerParams{
		EmployerID:   &employerID,
		FirstName:    first,
		LastName:     last,
		MobileNumber: phoneNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}
	return &w, nil
}

func splitName(full string) (first, last string) {
	tokens := strings.Fields(full)
	if len(tokens) == 0 {
		return "", ""
	}
	first = tokens[0]
	if len(tokens) > 1 {
		last = strings.Join(tokens[1:], " ")
	}
	return first, last
}

// generateIncidentNumber builds a date-stamped human-readable number and
// regenerates on the rare suffix collision.
func (s *Service) generateIncidentNumber(ctx context.Context) (string, error) {
	date := s.now().Format("20060102")
	for attempt := 0; attempt < 10; attempt++ {
		number := fmt.Sprintf("INC-%s-%04d", date, s.randInt(10000))
		exists, err := s.store.IncidentNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", apperr.Internal("could not generate a unique incident number")
}

// foldCaseNotes captures reporter and witness context that has no structured
// columns of its own.
func foldCaseNotes(f repository.StagingFields) string {
	var lines []string
	if f.CallerName != nil {
		caller := "Reported by " + *f.CallerName
		if f.CallerRole != nil {
			caller += " (" + *f.CallerRole + ")"
		}
		if f.CallerPosition != nil {
			caller += ", " + *f.CallerPosition
		}
		lines = append(lines, caller)
	}
	if f.CallerPhone != nil {
		lines = append(lines, "Contact number: "+*f.CallerPhone)
	}
	if f.WitnessName != nil {
		lines = append(lines, "Witness: "+*f.WitnessName)
	}
	if f.CallerWasWitness != nil && *f.CallerWasWitness {
		lines = append(lines, "Caller witnessed the incident")
	}
	if f.TreatmentReceived != nil {
		lines = append(lines, "Treatment received: "+*f.TreatmentReceived)
	}
	return strings.Join(lines, "\n")
}

func (s *Service) scheduleFollowUp(ctx context.Context, incident repository.Incident, worker *workersrepo.Worker) {
	if s.followUps == nil || s.cfg.GetDefaultMedicalCenterID() == 0 {
		return
	}
	if worker == nil || worker.MobileNumber == "" {
		return
	}

	err := s.followUps.ScheduleIncidentFollowUp(ctx, scheduler.IncidentFollowUpPayload{
		IncidentID:  incident.ID,
		WorkerID:    worker.ID,
		WorkerName:  worker.FullName(),
		WorkerPhone: worker.MobileNumber,
	}, s.now().Add(followUpDelay))
	if err != nil {
		s.log.Error("schedule follow-up failed", "incident_id", incident.ID, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
