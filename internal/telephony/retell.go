package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"incident_portal_backend/platform/apperr"
	"incident_portal_backend/platform/config"
	"incident_portal_backend/platform/logger"
)

// RetellClient places calls through the Retell create-phone-call API.
type RetellClient struct {
	baseURL    string
	apiKey     string
	fromNumber string
	agentFor   func(taskType string) string
	http       *http.Client
	log        *logger.Logger
}

type retellCreateCallRequest struct {
	FromNumber      string            `json:"from_number"`
	ToNumber        string            `json:"to_number"`
	OverrideAgentID string            `json:"override_agent_id,omitempty"`
	DynamicVars     map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

type retellCreateCallResponse struct {
	CallID     string `json:"call_id"`
	CallStatus string `json:"call_status"`
}

// NewRetellClient builds the provider client. Returns nil when no base URL
// is configured so local runs without a provider stay usable.
func NewRetellClient(cfg config.TelephonyConfig, log *logger.Logger) *RetellClient {
	if cfg.GetRetellBaseURL() == "" {
		return nil
	}

	timeout := cfg.GetRetellCallTimeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &RetellClient{
		baseURL:    strings.TrimRight(cfg.GetRetellBaseURL(), "/"),
		apiKey:     cfg.GetRetellAPIKey(),
		fromNumber: cfg.GetRetellFromNumber(),
		agentFor:   cfg.GetAgentID,
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}
}

// PlaceCall dispatches one outbound call and returns the provider call id.
func (c *RetellClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if c == nil {
		return PlaceCallResult{}, apperr.Internal("telephony provider is not configured")
	}

	payload := retellCreateCallRequest{
		FromNumber:      c.fromNumber,
		ToNumber:        req.ToNumber,
		OverrideAgentID: c.agentFor(req.TaskType),
		DynamicVars:     req.Variables,
		Metadata:        req.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("marshal call payload: %w", err)
	}

	url := fmt.Sprintf("%s/v2/create-phone-call", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return PlaceCallResult{}, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return PlaceCallResult{}, apperr.Upstream("voice provider request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return PlaceCallResult{}, apperr.Upstream(
			fmt.Sprintf("voice provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}

	var parsed retellCreateCallResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return PlaceCallResult{}, apperr.Upstream("voice provider returned malformed response", err)
	}
	if parsed.CallID == "" {
		return PlaceCallResult{}, apperr.Upstream("voice provider response missing call_id", nil)
	}

	c.log.CallEvent("call placed", parsed.CallID, req.TaskType, 0)
	return PlaceCallResult{CallID: parsed.CallID, Status: parsed.CallStatus}, nil
}
