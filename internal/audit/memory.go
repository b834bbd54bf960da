package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps decisions in memory. Suitable for tests and for
// running without an audit database; records are lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions []Decision
	closed    bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.decisions = append(s.decisions, d)
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	n := len(s.decisions)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Decision, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.decisions[i])
	}
	return out, nil
}

// CountByOutcome implements Store.
func (s *MemoryStore) CountByOutcome(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	counts := make(map[string]int)
	for _, d := range s.decisions {
		counts[d.Outcome]++
	}
	return counts, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
