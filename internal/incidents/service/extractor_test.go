package service

import "testing"

func TestExtractSubmissionArgsTakePriority(t *testing.T) {
	body := map[string]any{
		"call_id": "call_flat",
		"args": map[string]any{
			"call_id":     "call_args",
			"injury_type": "laceration",
		},
		"call": map[string]any{
			"call_id": "call_nested",
			"collected_variables": map[string]any{
				"injury_type": "burn",
				"severity":    "moderate",
			},
		},
		"injury_type": "sprain",
		"worker_name": "John Smith",
	}

	callID, fields := extractSubmission(body)

	if callID != "call_args" {
		t.Fatalf("call id = %q, want call_args", callID)
	}
	if fields.InjuryType == nil || *fields.InjuryType != "laceration" {
		t.Errorf("injury type = %v, want laceration from args", fields.InjuryType)
	}
	if fields.Severity == nil || *fields.Severity != "moderate" {
		t.Errorf("severity = %v, want moderate from collected_variables", fields.Severity)
	}
	if fields.WorkerName == nil || *fields.WorkerName != "John Smith" {
		t.Errorf("worker name = %v, want John Smith from flat body", fields.WorkerName)
	}
}

func TestExtractSubmissionCallIDFromNestedCall(t *testing.T) {
	body := map[string]any{
		"call": map[string]any{"call_id": "call_nested"},
	}

	callID, _ := extractSubmission(body)
	if callID != "call_nested" {
		t.Fatalf("call id = %q, want call_nested", callID)
	}
}

func TestExtractSubmissionNumericCoercion(t *testing.T) {
	body := map[string]any{
		"call_id":     "call_1",
		"employer_id": float64(42),
		"site_id":     "17",
		"worker_id":   "not a number",
	}

	_, fields := extractSubmission(body)

	if fields.EmployerID == nil || *fields.EmployerID != 42 {
		t.Errorf("employer id = %v, want 42", fields.EmployerID)
	}
	if fields.SiteID == nil || *fields.SiteID != 17 {
		t.Errorf("site id = %v, want 17 coerced from string", fields.SiteID)
	}
	if fields.WorkerID != nil {
		t.Errorf("worker id = %v, want nil for unparseable value", fields.WorkerID)
	}
}

func TestExtractSubmissionBoolForms(t *testing.T) {
	cases := []struct {
		value any
		want  *bool
	}{
		{true, boolPtr(true)},
		{false, boolPtr(false)},
		{"yes", boolPtr(true)},
		{"No", boolPtr(false)},
		{"maybe", nil},
	}

	for _, tc := range cases {
		_, fields := extractSubmission(map[string]any{
			"call_id":            "call_1",
			"caller_was_witness": tc.value,
		})
		got := fields.CallerWasWitness
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("value %v: got %v, want nil", tc.value, *got)
		case tc.want != nil && got == nil:
			t.Errorf("value %v: got nil, want %v", tc.value, *tc.want)
		case tc.want != nil && got != nil && *got != *tc.want:
			t.Errorf("value %v: got %v, want %v", tc.value, *got, *tc.want)
		}
	}
}

func TestExtractSubmissionOmittedFieldsStayNil(t *testing.T) {
	_, fields := extractSubmission(map[string]any{
		"call_id":     "call_1",
		"injury_type": "",
	})

	if fields.InjuryType != nil {
		t.Errorf("empty string should extract as nil, got %q", *fields.InjuryType)
	}
	if fields.WorkerName != nil || fields.EmployerName != nil || fields.CallerWasWitness != nil {
		t.Error("omitted fields should stay nil")
	}
}

func boolPtr(b bool) *bool { return &b }
