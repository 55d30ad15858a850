package checkpoint

import (
	"context"
	"sync"
)

// MemStore keeps the cursor in memory. For tests and for running without
// redis configured; state does not survive a restart.
type MemStore struct {
	mu  sync.Mutex
	cur Cursor
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load(ctx context.Context) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, nil
}

func (s *MemStore) Save(ctx context.Context, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = c
	return nil
}
