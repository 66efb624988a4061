package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"incident_portal_backend/platform/apperr"
	"incident_portal_backend/platform/logger"
)

type fakeTelephonyConfig struct {
	baseURL string
}

func (f fakeTelephonyConfig) GetRetellBaseURL() string            { return f.baseURL }
func (f fakeTelephonyConfig) GetRetellAPIKey() string             { return "test-key" }
func (f fakeTelephonyConfig) GetRetellFromNumber() string         { return "+61280001111" }
func (f fakeTelephonyConfig) GetRetellCallTimeout() time.Duration { return 5 * time.Second }
func (f fakeTelephonyConfig) GetAgentID(taskType string) string   { return "agent_" + taskType }

func TestPlaceCallSendsProviderPayload(t *testing.T) {
	var got retellCreateCallRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/create-phone-call" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(retellCreateCallResponse{CallID: "call_abc123", CallStatus: "registered"})
	}))
	defer srv.Close()

	client := NewRetellClient(fakeTelephonyConfig{baseURL: srv.URL + "/"}, logger.New("test"))

	res, err := client.PlaceCall(context.Background(), PlaceCallRequest{
		ToNumber: "+61421234567",
		TaskType: "booking_get_times",
		Variables: map[string]string{
			"worker_name": "John Smith",
		},
		Metadata: map[string]any{"workflow_id": int64(42)},
	})
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}

	if res.CallID != "call_abc123" || res.Status != "registered" {
		t.Fatalf("result = %+v", res)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if got.FromNumber != "+61280001111" || got.ToNumber != "+61421234567" {
		t.Fatalf("numbers = %q -> %q", got.FromNumber, got.ToNumber)
	}
	if got.OverrideAgentID != "agent_booking_get_times" {
		t.Fatalf("agent = %q", got.OverrideAgentID)
	}
	if got.DynamicVars["worker_name"] != "John Smith" {
		t.Fatalf("dynamic vars = %+v", got.DynamicVars)
	}
}

func TestPlaceCallUpstreamErrorOnFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid agent"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewRetellClient(fakeTelephonyConfig{baseURL: srv.URL}, logger.New("test"))

	_, err := client.PlaceCall(context.Background(), PlaceCallRequest{ToNumber: "+61421234567"})
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestPlaceCallRejectsMissingCallID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"call_status":"registered"}`))
	}))
	defer srv.Close()

	client := NewRetellClient(fakeTelephonyConfig{baseURL: srv.URL}, logger.New("test"))

	if _, err := client.PlaceCall(context.Background(), PlaceCallRequest{ToNumber: "+61421234567"}); err == nil {
		t.Fatal("expected error when call_id is absent")
	}
}

func TestNewRetellClientNilWithoutBaseURL(t *testing.T) {
	if c := NewRetellClient(fakeTelephonyConfig{}, logger.New("test")); c != nil {
		t.Fatal("expected nil client without a base URL")
	}
}
