package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error

	// Recent returns the newest events first, up to limit.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Service logs operator actions against live calls.
//
// IMPORTANT:
// - Audit is internal-only. Expose records to admins, not to regular operators.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

const defaultRecentLimit = 100

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallStarted records an operator dialing out to a customer.
func (s *Service) LogCallStarted(ctx context.Context, operatorID, role, ip, sessionID, phoneNumber string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCallStarted,
		OperatorID:  operatorID,
		Role:        role,
		IPAddress:   ip,
		SessionID:   sessionID,
		PhoneNumber: phoneNumber,
		Message:     "outbound call placed",
	})
}

// LogCallTerminated records an operator hanging up a live call.
func (s *Service) LogCallTerminated(ctx context.Context, operatorID, role, ip, sessionID string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeCallTerminated,
		OperatorID: operatorID,
		Role:       role,
		IPAddress:  ip,
		SessionID:  sessionID,
		Message:    "call terminated by operator",
	})
}

// Recent returns the newest events for the admin trail view.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.repo.Recent(ctx, limit)
}
