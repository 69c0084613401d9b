package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JaimeStill/pairwise/pkg/storage"
)

// BlobStore keeps states as checkpoints/<run>.json blobs. A blob upload
// replaces the previous content in one commit.
type BlobStore struct {
	storage storage.System
}

// NewBlobStore returns a Store over a started storage system.
func NewBlobStore(s storage.System) *BlobStore {
	return &BlobStore{storage: s}
}

// Key returns the blob key for runID.
func Key(runID string) string {
	return "checkpoints/" + runID + ".json"
}

func (b *BlobStore) Load(ctx context.Context, runID string) (*State, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	rc, err := b.storage.Download(ctx, Key(runID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("download checkpoint: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return Decode(data)
}

func (b *BlobStore) Save(ctx context.Context, s *State) error {
	if err := validateRunID(s.RunID); err != nil {
		return err
	}

	s.UpdatedAt = time.Now().UTC()
	data, err := Encode(s)
	if err != nil {
		return err
	}

	if err := b.storage.Upload(ctx, Key(s.RunID), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("upload checkpoint: %w", err)
	}
	return nil
}
