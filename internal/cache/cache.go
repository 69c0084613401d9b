// Package cache memoizes unit classifications by content fingerprint and
// coalesces concurrent requests for the same fingerprint into one oracle
// call.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JaimeStill/pairwise/internal/records"
)

// Entry is the recorded classification of one fingerprint. An entry is
// immutable once stored.
type Entry struct {
	Fingerprint string        `json:"fingerprint"`
	Label       records.Label `json:"label"`
	Latency     time.Duration `json:"latency"`
	Attempts    int           `json:"attempts"`
}

// ClassifyFunc performs the oracle work for a cache miss and reports the
// number of attempts it made.
type ClassifyFunc func(ctx context.Context) (records.Label, int, error)

// abandonedError marks a shared call that failed because the caller that
// started it was cancelled.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	flights singleflight.Group
	store   Store
	logger  *slog.Logger
}

// New creates an empty Cache. store may be nil for a memory-only cache.
func New(store Store, logger *slog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		store:   store,
		logger:  logger.With("system", "cache"),
	}
}

// Warm loads previously persisted entries from the backing store.
func (c *Cache) Warm(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	entries, err := c.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("warm cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if _, ok := c.entries[e.Fingerprint]; !ok {
			c.entries[e.Fingerprint] = e
		}
	}

	c.logger.InfoContext(ctx, "cache warmed", "entries", len(entries))
	return len(entries), nil
}

// Get returns the entry for fingerprint if one has been recorded.
func (c *Cache) Get(fingerprint string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fingerprint]
	return e, ok
}

// Len returns the number of recorded entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolve returns the label for fingerprint, calling classify on a miss.
// Concurrent callers for the same fingerprint share a single classify
// call. The reported bool is true when the caller did not trigger the
// oracle itself, either because the entry was already recorded or because
// it joined another caller's in-flight request.
//
// Each caller returns as soon as its own ctx is done, even while the shared
// call is still running. When the shared call fails because the caller
// that started it was cancelled, waiters whose ctx is still live start a
// new call. Failed calls are not recorded, so a later Resolve retries the
// fingerprint.
func (c *Cache) Resolve(ctx context.Context, fingerprint string, classify ClassifyFunc) (Entry, bool, error) {
	for {
		if e, ok := c.Get(fingerprint); ok {
			return e, true, nil
		}

		leader := false
		ch := c.flights.DoChan(fingerprint, func() (any, error) {
			leader = true

			if e, ok := c.Get(fingerprint); ok {
				return e, nil
			}

			start := time.Now()
			label, attempts, err := classify(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return Entry{}, &abandonedError{err: err}
				}
				return Entry{}, err
			}

			e := Entry{
				Fingerprint: fingerprint,
				Label:       label,
				Latency:     time.Since(start),
				Attempts:    attempts,
			}
			return c.record(ctx, e), nil
		})

		select {
		case <-ctx.Done():
			return Entry{}, false, ctx.Err()
		case r := <-ch:
			if r.Err == nil {
				return r.Val.(Entry), !leader, nil
			}

			var abandoned *abandonedError
			if !errors.As(r.Err, &abandoned) {
				return Entry{}, false, r.Err
			}
			if leader || ctx.Err() != nil {
				return Entry{}, false, abandoned.err
			}
			c.logger.DebugContext(ctx, "shared classification abandoned, retrying",
				"fingerprint", fingerprint,
			)
		}
	}
}

// record stores e unless an entry already exists, returning the entry that
// ends up recorded.
func (c *Cache) record(ctx context.Context, e Entry) Entry {
	c.mu.Lock()
	if existing, ok := c.entries[e.Fingerprint]; ok {
		c.mu.Unlock()
		return existing
	}
	c.entries[e.Fingerprint] = e
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(context.WithoutCancel(ctx), e); err != nil {
			c.logger.WarnContext(ctx, "persist cache entry failed",
				"fingerprint", e.Fingerprint,
				"error", err,
			)
		}
	}

	return e
}
