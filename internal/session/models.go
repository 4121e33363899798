package session

import "time"

// Status is the call-session lifecycle state.
//
// Lifecycle: idle → calling → connecting → connected → ended.
// `ended` is terminal; `connected` self-loops once per completed turn.

type Status string

const (
	StatusIdle       Status = "idle"
	StatusCalling    Status = "calling"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one transcript line. Immutable once appended;
// insertion order is turn order and is never reordered.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EndReason records why a session reached `ended`.
type EndReason string

const (
	EndReasonEndingPhrase     EndReason = "ending_phrase"
	EndReasonProviderComplete EndReason = "provider_completed"
	EndReasonProviderFailed   EndReason = "provider_failed"
	EndReasonTimeoutExhausted EndReason = "timeout_exhausted"
	EndReasonOperator         EndReason = "operator"
)

// MaxTimeoutAttempts caps consecutive no-speech retries. At the cap the
// session speaks a closing line and ends instead of retrying again.
const MaxTimeoutAttempts = 3

// Flags are the monotonic per-session hints: once set, never reset within
// the session. The completion capability is prompted with them but is not
// guaranteed to respect them.
type Flags struct {
	ReorderConfirmed bool `json:"reorder_confirmed"`
	UpsellAttempted  bool `json:"upsell_attempted"`
	CustomerDone     bool `json:"customer_done"`
}

// Info is a read-only session snapshot for the operator API.
type Info struct {
	ID              string    `json:"id"`
	PhoneNumber     string    `json:"phone_number"`
	ProviderCallID  string    `json:"provider_call_id,omitempty"`
	Status          Status    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	EndedAt         time.Time `json:"ended_at,omitempty"`
	EndReason       EndReason `json:"end_reason,omitempty"`
	TimeoutAttempts int       `json:"timeout_attempts"`
	Turns           int       `json:"turns"`
	Flags           Flags     `json:"flags"`
}
