package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ramyshaaban/video-library/internal/domain"
)

// SignedURLStore holds signed URLs by object key. Implementations only
// store; expiry policy belongs to the caller.
type SignedURLStore interface {
	// Get returns the entry and true, or false on a miss.
	Get(ctx context.Context, key string) (domain.SignedAccess, bool, error)
	Set(ctx context.Context, key string, access domain.SignedAccess) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-local SignedURLStore.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]domain.SignedAccess
	now       func() time.Time
	lastSweep time.Time
}

const sweepInterval = time.Minute

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.SignedAccess), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (domain.SignedAccess, bool, error) {
	s.mu.RLock()
	a, ok := s.entries[key]
	s.mu.RUnlock()
	return a, ok, nil
}

// Set also drops expired entries, at most once per sweepInterval, so the map
// stays bounded by the number of keys signed within one TTL.
func (s *MemoryStore) Set(_ context.Context, key string, access domain.SignedAccess) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSweep) >= sweepInterval {
		for k, a := range s.entries {
			if !a.Valid(now) {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	s.entries[key] = access
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len is the number of entries currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
