package service

import (
	"strconv"
	"strings"

	"incident_portal_backend/internal/incidents/repository"
)

// Submission payloads arrive in three shapes, depending on the caller's
// generation: tool invocations put fields under "args", the provider's
// accumulated state lives under call.collected_variables, and legacy callers
// send a flat object. extractSubmission probes all three, in that priority
// order, and returns a typed field set where nil means "not supplied".

func extractSubmission(body map[string]any) (string, repository.StagingFields) {
	sources := submissionSources(body)

	callID := firstString(sources, "call_id")
	if callID == "" {
		if call, ok := body["call"].(map[string]any); ok {
			callID = asString(call["call_id"])
		}
	}

	fields := repository.StagingFields{
		EmployerID:        firstInt(sources, "employer_id"),
		EmployerName:      firstStringPtr(sources, "employer_name"),
		SiteID:            firstInt(sources, "site_id"),
		SiteName:          firstStringPtr(sources, "site_name"),
		WorkerID:          firstInt(sources, "worker_id"),
		WorkerName:        firstStringPtr(sources, "worker_name"),
		CallerName:        firstStringPtr(sources, "caller_name"),
		CallerRole:        firstStringPtr(sources, "caller_role"),
		CallerPosition:    firstStringPtr(sources, "caller_position"),
		CallerPhone:       firstStringPtr(sources, "caller_phone"),
		InjuryType:        firstStringPtr(sources, "injury_type"),
		InjuryDescription: firstStringPtr(sources, "injury_description"),
		BodyPartInjured:   firstStringPtr(sources, "body_part_injured"),
		BodySide:          firstStringPtr(sources, "body_side"),
		Severity:          firstStringPtr(sources, "severity"),
		DateOfInjury:      firstStringPtr(sources, "date_of_injury"),
		TimeOfInjury:      firstStringPtr(sources, "time_of_injury"),
		TreatmentReceived: firstStringPtr(sources, "treatment_received"),
		WitnessName:       firstStringPtr(sources, "witness_name"),
		CallerWasWitness:  firstBool(sources, "caller_was_witness"),
	}
	return callID, fields
}

// submissionSources returns the candidate field maps in priority order.
func submissionSources(body map[string]any) []map[string]any {
	var sources []map[string]any
	if args, ok := body["args"].(map[string]any); ok {
		sources = append(sources, args)
	}
	if call, ok := body["call"].(map[string]any); ok {
		if collected, ok := call["collected_variables"].(map[string]any); ok {
			sources = append(sources, collected)
		}
		if collected, ok := call["retell_llm_dynamic_variables"].(map[string]any); ok {
			sources = append(sources, collected)
		}
	}
	sources = append(sources, body)
	return sources
}

func firstString(sources []map[string]any, key string) string {
	for _, src := range sources {
		if v, ok := src[key]; ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstStringPtr(sources []map[string]any, key string) *string {
	if s := firstString(sources, key); s != "" {
		return &s
	}
	return nil
}

func firstInt(sources []map[string]any, key string) *int64 {
	for _, src := range sources {
		if v, ok := src[key]; ok {
			if n, ok := asInt64(v); ok {
				return &n
			}
		}
	}
	return nil
}

func firstBool(sources []map[string]any, key string) *bool {
	for _, src := range sources {
		switch v := src[key].(type) {
		case bool:
			b := v
			return &b
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes":
				b := true
				return &b
			case "false", "no":
				b := false
				return &b
			}
		}
	}
	return nil
}

// asString renders scalars the transcription layer may send as either
// strings or numbers.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
