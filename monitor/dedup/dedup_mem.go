package dedup

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemTracker keeps reported keys in an expiring LRU. For tests and for
// running without redis; entries do not survive a restart.
type MemTracker struct {
	Data *expirable.LRU[string, bool]
}

func NewMemTracker(capacity int, retention time.Duration) MemTracker {
	return MemTracker{
		Data: expirable.NewLRU[string, bool](capacity, nil, retention),
	}
}

func (t MemTracker) HasReported(ctx context.Context, key string) (bool, error) {
	_, ok := t.Data.Get(key)
	return ok, nil
}

func (t MemTracker) MarkReported(ctx context.Context, key string) error {
	t.Data.Add(key, true)
	return nil
}
