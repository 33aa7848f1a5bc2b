package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"review_notification_bot/internal/domain/state"
)

func TestFileStateRepository_MissingFileIsZeroState(t *testing.T) {
	repo := NewFileStateRepository(filepath.Join(t.TempDir(), "last_review.json"))

	s, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.LastReviewID != 0 || len(s.SeenReviewIDs) != 0 || !s.LastChecked.IsZero() {
		t.Errorf("expected zero state, got %+v", s)
	}
}

func TestFileStateRepository_SaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "last_review.json")
	repo := NewFileStateRepository(path)
	ctx := context.Background()

	checked := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	want := state.State{
		LastReviewID:  12,
		SeenReviewIDs: []int64{10, 11, 12},
		LastChecked:   state.At(checked),
	}
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LastReviewID != 12 || len(got.SeenReviewIDs) != 3 || !got.LastChecked.Equal(checked) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.LastNotificationSent.IsZero() {
		t.Errorf("LastNotificationSent should stay zero, got %v", got.LastNotificationSent)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}

	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "\n  \"last_review_id\": 12") {
		t.Errorf("state file should be indented JSON, got %s", raw)
	}
}

func TestFileStateRepository_EmptySeenWrittenAsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileStateRepository(path)

	if err := repo.Save(context.Background(), state.State{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `"seen_review_ids": []`) {
		t.Errorf("expected empty array, got %s", raw)
	}
}

func TestFileStateRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStateRepository(path).Load(context.Background())
	if !errors.Is(err, ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}

func TestFileStateRepository_SaveFailureKeepsOldState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	repo := NewFileStateRepository(path)
	ctx := context.Background()

	if err := repo.Save(ctx, state.State{LastReviewID: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Temp file creation fails in a missing directory.
	blocked := NewFileStateRepository(filepath.Join(dir, "sub", "state.json"))
	if err := blocked.Save(ctx, state.State{LastReviewID: 2}); err == nil {
		t.Fatal("expected error saving into a missing directory")
	}

	got, err := repo.Load(ctx)
	if err != nil || got.LastReviewID != 1 {
		t.Errorf("original state disturbed: %+v, %v", got, err)
	}
}
