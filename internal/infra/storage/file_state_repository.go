// internal/infra/storage/file_state_repository.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"review_notification_bot/internal/domain/state"
)

// ErrCorruptState is returned when the state file exists but cannot be decoded.
var ErrCorruptState = fmt.Errorf("state file is corrupt")

// FileStateRepository keeps the monitor state in a single JSON file.
type FileStateRepository struct {
	path string
}

var _ state.Repository = (*FileStateRepository)(nil)

func NewFileStateRepository(path string) *FileStateRepository {
	return &FileStateRepository{path: path}
}

// Load returns the stored state, or the zero state if the file does not exist yet.
func (r *FileStateRepository) Load(ctx context.Context) (state.State, error) {
	if err := ctx.Err(); err != nil {
		return state.State{}, err
	}

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state.State{}, nil
	}
	if err != nil {
		return state.State{}, fmt.Errorf("read state file %s: %w", r.path, err)
	}

	var s state.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return state.State{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, r.path, err)
	}
	return s, nil
}

// Save replaces the file atomically: the new content is written to a temp file
// in the same directory, synced, then renamed over the old one.
func (r *FileStateRepository) Save(ctx context.Context, s state.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.SeenReviewIDs == nil {
		s.SeenReviewIDs = []int64{}
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace state file %s: %w", r.path, err)
	}
	committed = true
	return nil
}
