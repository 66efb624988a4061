// Package telephony places outbound AI voice calls through a provider.
package telephony

import "context"

// PlaceCallRequest describes a single outbound call. Variables are injected
// into the voice agent's conversation context; Metadata rides along on the
// provider side and comes back on webhooks.
type PlaceCallRequest struct {
	ToNumber  string
	TaskType  string
	Variables map[string]string
	Metadata  map[string]any
}

// PlaceCallResult is the provider's acknowledgement of a placed call.
type PlaceCallResult struct {
	CallID string
	Status string
}

// CallProvider is the outbound-calling contract. Implemented by the Retell
// client; fakes implement it in tests so no dispatch logic touches the wire.
type CallProvider interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}
