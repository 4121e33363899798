package reporting

import (
	"context"
	"sync"

	"voiceagent-platform/internal/notify"
)

// MemoryRepo is a simple in-memory reporting repository. Completion events
// are small and bounded by call volume, so keeping the live window in memory
// is fine for a single-node deployment.

type MemoryRepo struct {
	mu     sync.Mutex
	events []notify.SessionCompleted
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Record(ctx context.Context, e notify.SessionCompleted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) ListCompletions(ctx context.Context, tr TimeRange) ([]notify.SessionCompleted, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.SessionCompleted, 0)
	for _, e := range r.events {
		if e.EndedAt.Before(tr.From) || !e.EndedAt.Before(tr.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
