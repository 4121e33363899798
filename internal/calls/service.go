// Package calls owns the operator-facing call lifecycle: dialing a customer,
// listing live sessions, fetching transcripts, and tearing a call down on
// request. The conversational loop itself lives with the orchestrator.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voiceagent-platform/internal/agent"
	"voiceagent-platform/internal/catalog"
	"voiceagent-platform/internal/history"
	"voiceagent-platform/internal/metrics"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/orchestrator"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/telephony"

	"github.com/google/uuid"
)

// Service coordinates outbound call initiation and teardown.
//
// Rules:
// - One concurrency slot per live call, released exactly once when the
//   session finalizes. ReleaseOnCompleted is wired into the registry's
//   completion publisher for that reason; Terminate never releases directly.
// - A failed PlaceCall leaves no session behind.
type Service struct {
	logger       *slog.Logger
	registry     *session.Registry
	orchestrator *orchestrator.Orchestrator
	provider     telephony.Provider
	catalog      *catalog.Service
	store        history.Store
	limiter      Limiter
	metrics      *metrics.Metrics

	baseURL string
	newID   func() string
}

func NewService(logger *slog.Logger, registry *session.Registry, orch *orchestrator.Orchestrator, provider telephony.Provider, cat *catalog.Service, store history.Store, limiter Limiter, m *metrics.Metrics, baseURL string) *Service {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	return &Service{
		logger:       logger,
		registry:     registry,
		orchestrator: orch,
		provider:     provider,
		catalog:      cat,
		store:        store,
		limiter:      limiter,
		metrics:      m,
		baseURL:      baseURL,
		newID:        uuid.NewString,
	}
}

// Start dials the customer and registers the session under a fresh id.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	phone, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return StartResult{}, err
	}

	ok, err := s.limiter.Acquire(ctx)
	if err != nil {
		return StartResult{}, fmt.Errorf("calls: acquire slot: %w", err)
	}
	if !ok {
		return StartResult{}, ErrTooManyCalls
	}

	id := s.newID()
	sess, err := s.registry.Create(id, phone)
	if err != nil {
		_ = s.limiter.Release(ctx)
		return StartResult{}, err
	}

	// Prime the conversation with the persona and live catalog pricing
	// before any audio flows.
	products, err := s.catalog.Products(ctx)
	if err != nil {
		s.logger.Warn("catalog load failed, dialing with persona only",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
	sess.Append(session.RoleSystem, agent.BuildSystemContext(products))

	if err := sess.BeginDialing(); err != nil {
		s.registry.Remove(id)
		_ = s.limiter.Release(ctx)
		return StartResult{}, err
	}

	res, err := s.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:                phone,
		VoiceURL:          s.baseURL + telephony.PathAnswer,
		StatusCallbackURL: s.baseURL + telephony.PathStatus,
	})
	if err != nil {
		s.registry.Remove(id)
		_ = s.limiter.Release(ctx)
		return StartResult{}, fmt.Errorf("calls: place call: %w", err)
	}

	if err := s.registry.BindProviderCallID(id, res.ProviderCallID); err != nil {
		s.logger.Error("bind provider call id failed",
			slog.String("session_id", id),
			slog.String("provider_call_id", res.ProviderCallID),
			slog.String("error", err.Error()),
		)
	}

	if s.metrics != nil {
		s.metrics.CallsInitiated.Inc()
		s.metrics.ActiveSessions.Inc()
	}
	s.logger.Info("outbound call placed",
		slog.String("session_id", id),
		slog.String("phone_number", phone),
		slog.String("provider_call_id", res.ProviderCallID),
	)
	return StartResult{
		SessionID:      id,
		ProviderCallID: res.ProviderCallID,
		Status:         string(res.Status),
	}, nil
}

// Terminate hangs up and finalizes a live call on operator request.
func (s *Service) Terminate(ctx context.Context, sessionID string) error {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return ErrCallNotFound
	}
	if sess.Ended() {
		return ErrCallEnded
	}

	if pid := sess.ProviderCallID(); pid != "" {
		if err := s.provider.Terminate(ctx, pid); err != nil {
			// The session still ends locally; the provider call times out
			// on its own if the hangup never lands.
			s.logger.Warn("provider terminate failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.orchestrator.EndSession(ctx, sessionID, session.EndReasonOperator)
}

// List snapshots every registered session, live and recently ended.
func (s *Service) List(ctx context.Context) []session.Info {
	all := s.registry.All()
	out := make([]session.Info, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.Snapshot())
	}
	return out
}

// Get snapshots one session.
func (s *Service) Get(ctx context.Context, sessionID string) (session.Info, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return session.Info{}, ErrCallNotFound
	}
	return sess.Snapshot(), nil
}

// Conversation returns the user-visible transcript. Live sessions are read
// from the registry; ended and evicted ones fall back to the history store.
func (s *Service) Conversation(ctx context.Context, sessionID string) ([]session.ConversationMessage, error) {
	if sess, ok := s.registry.Get(sessionID); ok {
		return sess.Conversation(), nil
	}

	rec, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, err
	}
	out := make([]session.ConversationMessage, 0, len(rec.Transcript))
	for _, m := range rec.Transcript {
		if session.Role(m.Role) == session.RoleSystem {
			continue
		}
		out = append(out, session.ConversationMessage{
			Role:      session.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// ReleaseOnCompleted builds the publisher hook that frees the concurrency
// slot when a session finalizes. Finalize publishes exactly once per
// session, which keeps acquire and release paired. Standalone so it can be
// wired into the registry's publisher chain before this service exists.
func ReleaseOnCompleted(limiter Limiter, m *metrics.Metrics) notify.Publisher {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	return notify.Func(func(ctx context.Context, e notify.SessionCompleted) error {
		if m != nil {
			m.CallsEnded.WithLabelValues(e.EndReason).Inc()
			m.ActiveSessions.Dec()
		}
		return limiter.Release(ctx)
	})
}

// normalizePhone strips formatting and checks for an E.164-shaped number.
func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// formatting, drop
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidPhone, r)
		}
	}
	phone := b.String()
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return phone, nil
}
