package usedjti

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a map-backed single-use ledger for tests and
// single-instance deployments.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemory constructs an empty in-memory ledger.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *InMemoryStore) MarkUsed(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	if expiry, ok := s.entries[jti]; ok && expiry.After(now) {
		return false, nil
	}
	s.entries[jti] = now.Add(ttl)
	return true, nil
}

// prune drops expired entries. Called under the lock.
func (s *InMemoryStore) prune(now time.Time) {
	for jti, expiry := range s.entries {
		if !expiry.After(now) {
			delete(s.entries, jti)
		}
	}
}
