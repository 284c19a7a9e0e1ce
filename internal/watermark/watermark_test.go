package watermark

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsToLookback(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	store := NewFileStore(filepath.Join(t.TempDir(), "last_sync.txt"), 7*24*time.Hour, nil).WithClock(func() time.Time { return now })
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("expected now-7d, got %s", got)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last_sync.txt")
	store := NewFileStore(path, time.Hour, nil)
	want := time.Date(2025, 5, 1, 8, 30, 15, 123000000, time.UTC)
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestLoadAcceptsNaiveISOTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_sync.txt")
	if err := os.WriteFile(path, []byte("2024-11-02T14:05:06.250000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := NewFileStore(path, time.Hour, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := time.Date(2024, 11, 2, 14, 5, 6, 250000000, time.Local)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestLoadGarbageFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_sync.txt")
	if err := os.WriteFile(path, []byte("not a time"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	got, _ := NewFileStore(path, time.Hour, nil).WithClock(func() time.Time { return now }).Load(context.Background())
	if !got.Equal(now.Add(-time.Hour)) {
		t.Fatalf("expected fallback, got %s", got)
	}
}
