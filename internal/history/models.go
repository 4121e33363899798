package history

import (
	"time"

	"voiceagent-platform/internal/order"
)

// Record is the write-once export of a finished call: the conversation
// transcript plus the final extracted order. Consumers (dashboard, reporting)
// read it; the pipeline only ever writes it.

type Record struct {
	SessionID   string `json:"session_id" db:"session_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`

	// EndReason is the session end reason (ending phrase, provider status,
	// timeout exhaustion, operator).
	EndReason string `json:"end_reason" db:"end_reason"`

	Transcript []Message   `json:"transcript"`
	Order      order.State `json:"order"`
}

// Message is one transcript line. Immutable once written.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
