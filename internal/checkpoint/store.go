package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store backends accepted by configuration.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendBlob     = "blob"
)

// Store persists one State per run. Save must be atomic: a reader observes
// either the previous state or the new one, never a partial write.
type Store interface {
	Load(ctx context.Context, runID string) (*State, error)
	Save(ctx context.Context, s *State) error
}

// FileStore keeps each run's state as <dir>/<run>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds runID's state.
func (f *FileStore) Path(runID string) string {
	return filepath.Join(f.dir, runID+".json")
}

func (f *FileStore) Load(ctx context.Context, runID string) (*State, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.Path(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return Decode(data)
}

// Save writes to a temporary file in the same directory, syncs it, renames
// it over the previous state and syncs the directory.
func (f *FileStore) Save(ctx context.Context, s *State) error {
	if err := validateRunID(s.RunID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.UpdatedAt = time.Now().UTC()
	data, err := Encode(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, f.Path(s.RunID)); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	tmpPath = ""

	if err := syncDir(f.dir); err != nil {
		return fmt.Errorf("sync checkpoint dir: %w", err)
	}
	return nil
}

// syncDir flushes the directory entry so a completed rename survives a
// crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: empty run id", ErrNotFound)
	}
	if strings.ContainsAny(runID, `/\`) || strings.Contains(runID, "..") {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}
