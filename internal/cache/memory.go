package cache

import (
	"context"
	"sync"
	"time"

	"photo-curator/internal/ai"
)

type memoryEntry struct {
	analysis *ai.ImageAnalysis
	storedAt time.Time
}

// MemoryStore is an in-memory Store, used as the default when no cache file
// or database is configured, and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*ai.ImageAnalysis, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().Sub(entry.storedAt) > s.ttl {
		// Expired entries are treated as absent and removed lazily.
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.storedAt.Equal(entry.storedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.analysis, true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, analysis *ai.ImageAnalysis) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{analysis: analysis, storedAt: s.now()}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of entries currently held, including expired ones
// not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
