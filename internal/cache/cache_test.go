package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-curator/internal/ai"
)

func TestKeyChangesWithIdentity(t *testing.T) {
	mod := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	base := Key("/photos/a.jpg", mod, 1000)

	if Key("/photos/a.jpg", mod, 1000) != base {
		t.Error("expected key to be stable for identical inputs")
	}
	if Key("/photos/b.jpg", mod, 1000) == base {
		t.Error("expected key to change with path")
	}
	if Key("/photos/a.jpg", mod.Add(time.Second), 1000) == base {
		t.Error("expected key to change with modification time")
	}
	if Key("/photos/a.jpg", mod, 1001) == base {
		t.Error("expected key to change with size")
	}
	if len(base) != 32 {
		t.Errorf("expected 32-char hex key, got %d chars", len(base))
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty store")
	}
	if err := s.Put(ctx, "k", &ai.ImageAnalysis{Category: "street"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got.Category != "street" {
		t.Errorf("got category %q, want street", got.Category)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	if err := s.Put(ctx, "k", &ai.ImageAnalysis{}); err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(59 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Error("expected hit before TTL")
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected miss after TTL")
	}
	if s.Len() != 0 {
		t.Errorf("expected lazy eviction to remove the entry, %d left", s.Len())
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", &ai.ImageAnalysis{Category: "macro", TechnicalScore: 9.1}); err != nil {
		t.Fatal(err)
	}

	// A fresh store reads the persisted file.
	s2, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := s2.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected persisted hit, ok=%v err=%v", ok, err)
	}
	if got.Category != "macro" || got.TechnicalScore != 9.1 {
		t.Errorf("got %+v, want the stored analysis back", got)
	}
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("expected corrupt file to be tolerated, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", s.Len())
	}
}

func TestFileStoreExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	if err := s.Put(ctx, "k", &ai.ImageAnalysis{}); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Hour)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected miss after TTL")
	}
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	s, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", &ai.ImageAnalysis{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store after Clear, got %d", s.Len())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected backing file to be deleted")
	}
}
