package commitment

import (
	"context"
	"sync"
)

// MemoryStore is an append-only in-process log.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendCommitment(_ context.Context, rec Record) error {
	rec.PrivateSeed = ""
	s.append(rec)
	return nil
}

func (s *MemoryStore) AppendReveal(_ context.Context, rec Record) error {
	s.append(rec)
	return nil
}

func (s *MemoryStore) append(rec Record) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

// Records returns a copy of the log in append order
func (s *MemoryStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
