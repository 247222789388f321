package breaker

import (
	"context"
	"sync"
)

// MemoryStore keeps breaker state in process. Replicas do not share it.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Update(_ context.Context, key string, fn func(rec *Record) bool) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[key]
	normalize(&rec)

	if fn(&rec) {
		s.records[key] = rec
	}

	return rec, nil
}
