package history

import (
	"context"
	"errors"
)

// Store is the persistence contract for call records.
//
// Rules:
// - Save is write-once per session; a second Save for the same session id
//   must not overwrite the first.
// - Failures are surfaced to the caller; the pipeline treats them as
//   observability events, not call aborts.

type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, sessionID string) (Record, error)
}

var (
	ErrNotFound      = errors.New("history: record not found")
	ErrAlreadySaved  = errors.New("history: record already saved")
	ErrInvalidRecord = errors.New("history: invalid record")
)
