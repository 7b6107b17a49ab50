package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photo-curator/internal/ai"
)

type fileEntry struct {
	Analysis *ai.ImageAnalysis `json:"analysis"`
	StoredAt time.Time         `json:"stored_at"`
}

// FileStore is a JSON-file-backed Store so analyses survive between runs.
// The whole map is rewritten on every Put via a temp file rename, which keeps
// the file consistent even if the process dies mid-write.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]fileEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewFileStore(path string, ttl time.Duration) (*FileStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &FileStore{
		path:    path,
		entries: make(map[string]fileEntry),
		ttl:     ttl,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read cache file: %w", err)
		}
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		// A corrupt cache is not fatal, start over with an empty one.
		s.entries = make(map[string]fileEntry)
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (*ai.ImageAnalysis, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().Sub(entry.StoredAt) > s.ttl {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.Analysis, true, nil
}

func (s *FileStore) Put(ctx context.Context, key string, analysis *ai.ImageAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = fileEntry{Analysis: analysis, StoredAt: s.now()}
	return s.persistLocked()
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *FileStore) persistLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Clear removes all entries and deletes the backing file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]fileEntry)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// Len returns the number of entries currently held.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
