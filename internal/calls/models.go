package calls

import "errors"

var (
	ErrInvalidPhone = errors.New("calls: invalid phone number")
	ErrTooManyCalls = errors.New("calls: concurrent call limit reached")
	ErrCallNotFound = errors.New("calls: not found")
	ErrCallEnded    = errors.New("calls: already ended")
)

// StartRequest is the operator request to dial a customer.
type StartRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// StartResult identifies the created session and its provider handle.
type StartResult struct {
	SessionID      string `json:"session_id"`
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`
}
