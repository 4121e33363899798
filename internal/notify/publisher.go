// Package notify delivers session-completed events to interested consumers
// (dashboard refresh, downstream reporting). Delivery is best-effort.
package notify

import (
	"context"
	"errors"
	"time"
)

// SessionCompleted is published once per call when the session reaches its
// terminal state.
type SessionCompleted struct {
	SessionID   string    `json:"session_id"`
	PhoneNumber string    `json:"phone_number"`
	EndReason   string    `json:"end_reason"`
	EndedAt     time.Time `json:"ended_at"`

	Turns           int   `json:"turns"`
	OrderLines      int   `json:"order_lines"`
	OrderTotalMinor int64 `json:"order_total_minor"`
}

// Publisher is the outbound notification contract.
//
// Rules:
// - Publish failures must not fail the call teardown; callers log and move on.
// - Events may be delivered at-most-once; consumers must tolerate loss.

type Publisher interface {
	Publish(ctx context.Context, e SessionCompleted) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, e SessionCompleted) error { return nil }

// Func adapts a plain function to the Publisher contract.
type Func func(ctx context.Context, e SessionCompleted) error

func (f Func) Publish(ctx context.Context, e SessionCompleted) error { return f(ctx, e) }

// Multi fans one event out to every publisher in order. All publishers run
// even when earlier ones fail; errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e SessionCompleted) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
