package session

import (
	"fmt"
	"sync"
	"time"

	"voiceagent-platform/internal/order"
)

// TransitionError reports a lifecycle transition the state machine forbids.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: invalid transition from %s to %s", e.From, e.To)
}

// CallSession is the per-call unit of state: status, transcript, timeout
// counter, monotonic flags, and the running extracted order. One exists per
// active call; only the orchestrator and state machine for its id mutate it.
//
// All methods are safe for concurrent use.
type CallSession struct {
	ID          string
	PhoneNumber string

	mu              sync.Mutex
	providerCallID  string
	status          Status
	startTime       time.Time
	endedAt         time.Time
	endReason       EndReason
	timeoutAttempts int
	transcript      []ConversationMessage
	flags           Flags
	order           order.State

	clock func() time.Time
}

// New creates a session in the idle state.
func New(id, phoneNumber string) *CallSession {
	return newWithClock(id, phoneNumber, time.Now)
}

func newWithClock(id, phoneNumber string, clock func() time.Time) *CallSession {
	return &CallSession{
		ID:          id,
		PhoneNumber: phoneNumber,
		status:      StatusIdle,
		startTime:   clock().UTC(),
		clock:       clock,
	}
}

func (s *CallSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *CallSession) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// SetProviderCallID binds the telephony provider's call handle once known.
func (s *CallSession) SetProviderCallID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providerCallID = id
}

func (s *CallSession) ProviderCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerCallID
}

// BeginDialing moves idle → calling when the outbound leg is initiated.
func (s *CallSession) BeginDialing() error {
	return s.advance(StatusIdle, StatusCalling)
}

// MarkAnswered moves calling → connecting on the provider's answered signal.
func (s *CallSession) MarkAnswered() error {
	return s.advance(StatusCalling, StatusConnecting)
}

// MarkConnected moves the session to connected, either after the settle
// delay (from connecting) or immediately on confirmed two-way audio
// (from calling).
func (s *CallSession) MarkConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCalling && s.status != StatusConnecting {
		return &TransitionError{From: s.status, To: StatusConnected}
	}
	s.status = StatusConnected
	return nil
}

func (s *CallSession) advance(from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		return &TransitionError{From: s.status, To: to}
	}
	s.status = to
	return nil
}

// RecordTimeout registers one no-speech timeout on a connected session.
// Returns the new attempt count and whether the ladder is exhausted; at
// exhaustion the caller speaks the closing line and then calls End.
func (s *CallSession) RecordTimeout() (attempts int, exhausted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return s.timeoutAttempts, false, &TransitionError{From: s.status, To: StatusConnected}
	}
	s.timeoutAttempts++
	return s.timeoutAttempts, s.timeoutAttempts >= MaxTimeoutAttempts, nil
}

// RecordSpeech resets the timeout ladder the instant real user speech
// arrives.
func (s *CallSession) RecordSpeech() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeoutAttempts = 0
}

func (s *CallSession) TimeoutAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutAttempts
}

// End moves the session to its terminal state. The first call wins;
// repeated calls report false and keep the original reason.
func (s *CallSession) End(reason EndReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return false
	}
	s.status = StatusEnded
	s.endReason = reason
	s.endedAt = s.clock().UTC()
	return true
}

func (s *CallSession) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusEnded
}

func (s *CallSession) EndedAt() (time.Time, EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt, s.endReason
}

// Append adds a transcript message with the session clock's timestamp.
func (s *CallSession) Append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: s.clock().UTC(),
	})
}

// Transcript returns a copy of the full transcript, system messages
// included.
func (s *CallSession) Transcript() []ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Conversation returns the transcript with system messages filtered out,
// the shape the operator API exposes.
func (s *CallSession) Conversation() []ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationMessage, 0, len(s.transcript))
	for _, m := range s.transcript {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ConfirmReorder sets the reorder-confirmed flag. Monotonic.
func (s *CallSession) ConfirmReorder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.ReorderConfirmed = true
}

// MarkUpsellAttempted sets the upsell-attempted flag. Monotonic.
func (s *CallSession) MarkUpsellAttempted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.UpsellAttempted = true
}

// MarkCustomerDone sets the customer-done flag. Monotonic.
func (s *CallSession) MarkCustomerDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.CustomerDone = true
}

func (s *CallSession) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// UpdateOrder applies fn to the session's order state under the session
// lock. fn must not retain the pointer.
func (s *CallSession) UpdateOrder(fn func(*order.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.order)
}

// OrderSnapshot returns a deep copy of the current order state.
func (s *CallSession) OrderSnapshot() order.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.order
	out.Products = make([]order.LineItem, len(s.order.Products))
	copy(out.Products, s.order.Products)
	out.RecommendedProducts = make([]string, len(s.order.RecommendedProducts))
	copy(out.RecommendedProducts, s.order.RecommendedProducts)
	return out
}

// Snapshot builds the read-only view exposed over the operator API.
func (s *CallSession) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := 0
	for _, m := range s.transcript {
		if m.Role == RoleUser {
			turns++
		}
	}
	return Info{
		ID:              s.ID,
		PhoneNumber:     s.PhoneNumber,
		ProviderCallID:  s.providerCallID,
		Status:          s.status,
		StartTime:       s.startTime,
		EndedAt:         s.endedAt,
		EndReason:       s.endReason,
		TimeoutAttempts: s.timeoutAttempts,
		Turns:           turns,
		Flags:           s.flags,
	}
}
