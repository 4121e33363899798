package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voiceagent-platform/internal/history"
	"voiceagent-platform/internal/notify"
)

var (
	ErrDuplicateSession = errors.New("session: id already registered")
	ErrSessionNotFound  = errors.New("session: not found")
)

const (
	// DefaultGrace keeps an ended session resolvable for late-arriving
	// telephony callbacks before eviction.
	DefaultGrace = 60 * time.Second

	defaultSweepInterval = 15 * time.Second
)

// RegistryConfig tunes session eviction.
type RegistryConfig struct {
	Grace         time.Duration
	SweepInterval time.Duration
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	out := c
	if out.Grace <= 0 {
		out.Grace = DefaultGrace
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = defaultSweepInterval
	}
	return out
}

// Registry owns one CallSession per id. It is the only holder of session
// maps; lookups by provider call id go through its secondary index rather
// than a parallel map elsewhere.
//
// On Finalize it persists the transcript and order to the history store,
// publishes a session-completed event, and leaves the session resolvable
// until the grace period elapses.
type Registry struct {
	logger    *slog.Logger
	store     history.Store
	publisher notify.Publisher
	grace     time.Duration

	mu         sync.Mutex
	sessions   map[string]*CallSession
	byProvider map[string]string

	clock  func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates a registry and starts its eviction sweep.
func NewRegistry(logger *slog.Logger, store history.Store, publisher notify.Publisher, cfg RegistryConfig) *Registry {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		logger:     logger,
		store:      store,
		publisher:  publisher,
		grace:      cfg.Grace,
		sessions:   make(map[string]*CallSession),
		byProvider: make(map[string]string),
		clock:      time.Now,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go r.sweepLoop(cfg.SweepInterval)
	return r
}

// Create registers a new idle session for the id.
func (r *Registry) Create(id, phoneNumber string) (*CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrDuplicateSession
	}
	s := newWithClock(id, phoneNumber, r.clock)
	r.sessions[id] = s
	r.logger.Info("session created",
		slog.String("session_id", id),
		slog.String("phone_number", phoneNumber),
	)
	return s, nil
}

func (r *Registry) Get(id string) (*CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// BindProviderCallID indexes the session under the provider's call handle
// so webhook callbacks keyed by that handle resolve to it.
func (r *Registry) BindProviderCallID(id, providerCallID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.SetProviderCallID(providerCallID)
	r.byProvider[providerCallID] = id
	return nil
}

func (r *Registry) GetByProviderCallID(providerCallID string) (*CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byProvider[providerCallID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Remove evicts a session immediately, bypassing the grace period.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if pid := s.ProviderCallID(); pid != "" {
		delete(r.byProvider, pid)
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns a snapshot of registered sessions, ended ones included.
func (r *Registry) All() []*CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Finalize ends the session, persists its record, and publishes the
// completed event. Repeated calls after the first are no-ops. Persistence
// and publish failures are logged, not returned; the teardown must finish
// regardless.
func (r *Registry) Finalize(ctx context.Context, id string, reason EndReason) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if !s.End(reason) {
		return nil
	}

	endedAt, _ := s.EndedAt()
	orderState := s.OrderSnapshot()
	transcript := s.Transcript()

	rec := history.Record{
		SessionID:   s.ID,
		PhoneNumber: s.PhoneNumber,
		StartedAt:   s.StartTime(),
		EndedAt:     endedAt,
		EndReason:   string(reason),
		Order:       orderState,
	}
	rec.Transcript = make([]history.Message, 0, len(transcript))
	turns := 0
	for _, m := range transcript {
		if m.Role == RoleUser {
			turns++
		}
		rec.Transcript = append(rec.Transcript, history.Message{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	if err := r.store.Save(ctx, rec); err != nil && !errors.Is(err, history.ErrAlreadySaved) {
		r.logger.Error("session record save failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := r.publisher.Publish(ctx, notify.SessionCompleted{
		SessionID:       s.ID,
		PhoneNumber:     s.PhoneNumber,
		EndReason:       string(reason),
		EndedAt:         endedAt,
		Turns:           turns,
		OrderLines:      len(orderState.Products),
		OrderTotalMinor: orderState.TotalMinor,
	}); err != nil {
		r.logger.Warn("session completed publish failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Info("session finalized",
		slog.String("session_id", id),
		slog.String("end_reason", string(reason)),
		slog.Int("turns", turns),
		slog.Int64("order_total_minor", orderState.TotalMinor),
	)
	return nil
}

// Stop halts the eviction sweep. Registered sessions are left in place.
func (r *Registry) Stop() {
	r.cancel()
	<-r.done
}

func (r *Registry) sweepLoop(interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweepExpired()
		}
	}
}

// sweepExpired evicts sessions that ended longer than the grace period ago.
func (r *Registry) sweepExpired() {
	now := r.clock()

	r.mu.Lock()
	expired := make([]string, 0)
	for id, s := range r.sessions {
		endedAt, _ := s.EndedAt()
		if s.Ended() && now.Sub(endedAt) > r.grace {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.removeLocked(id)
	}
	r.mu.Unlock()

	if len(expired) > 0 {
		r.logger.Info("evicted ended sessions",
			slog.Int("count", len(expired)),
		)
	}
}
