// Package service implements fuzzy worker identity resolution for mid-call
// name disambiguation.
package service

import (
	"context"
	"fmt"
	"strings"

	"incident_portal_backend/internal/workers/repository"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"
)

// WorkerLister loads registry rows for matching. Satisfied by repository.Repository.
type WorkerLister interface {
	ListActive(ctx context.Context, employerID *int64) ([]repository.Worker, error)
}

// MatchStatus is the confidence tier of a resolution verdict.
type MatchStatus string

const (
	// StatusFound means the best candidate cleared the auto-match threshold.
	StatusFound MatchStatus = "found"
	// StatusNeedsConfirmation means one or more candidates landed in the
	// confirmation band and the caller must be asked.
	StatusNeedsConfirmation MatchStatus = "needs_confirmation"
	// StatusNotFound means nobody scored above the confirmation threshold.
	StatusNotFound MatchStatus = "not_found"
)

// MatchCandidate is a scored worker surfaced to the caller.
type MatchCandidate struct {
	WorkerID     int64   `json:"worker_id"`
	FullName     string  `json:"full_name"`
	MobileNumber string  `json:"mobile_number,omitempty"`
	Occupation   string  `json:"occupation,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// Verdict is the outcome of resolving a spoken name.
type Verdict struct {
	Status     MatchStatus
	Best       *MatchCandidate
	Candidates []MatchCandidate
	Message    string
}

// Service resolves spoken worker names against the registry.
type Service struct {
	workers          WorkerLister
	weights          MatchWeights
	autoThreshold    float64
	confirmThreshold float64
	log              *logger.Logger
}

// New creates a new identity resolution service.
func New(workers WorkerLister, cfg config.MatchConfig, log *logger.Logger) *Service {
	return &Service{
		workers: workers,
		weights: MatchWeights{
			GivenNameBonus: cfg.GetMatchGivenNameBonus(),
			PhoneticBonus:  cfg.GetMatchPhoneticBonus(),
		},
		autoThreshold:    cfg.GetMatchAutoThreshold(),
		confirmThreshold: cfg.GetMatchConfirmThreshold(),
		log:              log,
	}
}

const maxListedCandidates = 3

// Resolve matches a spoken name against active workers, optionally scoped to
// an employer, and returns a confidence-tiered verdict.
func (s *Service) Resolve(ctx context.Context, spokenName string, employerID *int64) (Verdict, error) {
	spokenName = strings.TrimSpace(spokenName)
	if spokenName == "" {
		return Verdict{
			Status:  StatusNotFound,
			Message: "No name was provided, so no match was attempted.",
		}, nil
	}

	workers, err := s.workers.ListActive(ctx, employerID)
	if err != nil {
		return Verdict{}, err
	}
	if len(workers) == 0 {
		msg := "No active workers are registered."
		if employerID != nil {
			msg = fmt.Sprintf("No active workers are registered for employer %d.", *employerID)
		}
		return Verdict{Status: StatusNotFound, Message: msg}, nil
	}

	candidates := scoreWorkers(spokenName, workers, s.weights)
	if len(candidates) == 0 || candidates[0].score < s.confirmThreshold {
		return Verdict{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("No worker matched the name %q. The name will be recorded for manual linking.", spokenName),
		}, nil
	}

	// Only an exact normalized name may auto-match: near-misses can score
	// arbitrarily high (bonuses cap at 1.0) yet still be the wrong person,
	// so anything inexact is put to the caller.
	if candidates[0].exact && candidates[0].score >= s.autoThreshold {
		best := toMatchCandidate(candidates[0])
		s.log.Info("worker resolved automatically",
			"spoken_name", spokenName, "worker_id", best.WorkerID, "confidence", best.Confidence)
		return Verdict{
			Status:  StatusFound,
			Best:    &best,
			Message: fmt.Sprintf("Matched %s with high confidence.", best.FullName),
		}, nil
	}

	// Confirmation band: every usable candidate, highest first, capped.
	var inBand []MatchCandidate
	for _, c := range candidates {
		if c.score >= s.confirmThreshold {
			inBand = append(inBand, toMatchCandidate(c))
		}
		if len(inBand) == maxListedCandidates {
			break
		}
	}

	msg := fmt.Sprintf("Found a possible match for %q. Please confirm.", spokenName)
	if len(inBand) > 1 {
		msg = fmt.Sprintf("Found %d possible matches for %q. Please confirm which one.", len(inBand), spokenName)
	}

	return Verdict{
		Status:     StatusNeedsConfirmation,
		Candidates: inBand,
		Message:    msg,
	}, nil
}

func toMatchCandidate(c candidate) MatchCandidate {
	return MatchCandidate{
		WorkerID:     c.worker.ID,
		FullName:     c.worker.FullName(),
		MobileNumber: c.worker.MobileNumber,
		Occupation:   c.worker.Occupation,
		Confidence:   roundConfidence(c.score),
	}
}

// roundConfidence trims float noise so scores read cleanly in transcripts
// and logs.
func roundConfidence(score float64) float64 {
	return float64(int(score*1000+0.5)) / 1000
}
