package telephony

import (
	"context"
	"errors"
)

// Provider is the provider-agnostic telephony signaling interface.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Call-lifecycle and speech-result callbacks arrive over webhooks; the
//   adapter only parses them, business logic lives with the orchestrator.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall starts an outbound call leg. The provider fetches TwiML
	// from VoiceURL once the callee answers and posts lifecycle updates
	// to StatusCallbackURL.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// Terminate hangs up an in-progress call.
	Terminate(ctx context.Context, providerCallID string) error
}

var ErrProviderUnavailable = errors.New("telephony: provider unavailable")

type PlaceCallRequest struct {
	To   string `json:"to"`
	From string `json:"from"`

	VoiceURL          string `json:"voice_url"`
	StatusCallbackURL string `json:"status_callback_url"`
}

type PlaceCallResult struct {
	// ProviderCallID is the provider's unique handle for this call.
	ProviderCallID string `json:"provider_call_id"`

	Status CallStatus `json:"status"`
}

// CallStatus is the provider-reported call lifecycle state.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusCanceled   CallStatus = "canceled"
)

// Terminal reports whether the status ends the call.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return true
	}
	return false
}

// Failed reports whether a terminal status represents a failure rather
// than a normal completion.
func (s CallStatus) Failed() bool {
	switch s {
	case CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return true
	}
	return false
}
