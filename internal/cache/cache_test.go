package cache_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/pairwise/internal/cache"
	"github.com/JaimeStill/pairwise/internal/records"
)

var discard = slog.New(slog.DiscardHandler)

func TestResolveCoalesces(t *testing.T) {
	c := cache.New(nil, discard)

	var calls atomic.Int32
	release := make(chan struct{})
	classify := func(ctx context.Context) (records.Label, int, error) {
		calls.Add(1)
		<-release
		return records.Numeric, 1, nil
	}

	const n = 64
	fp := records.Fingerprint("How many feet are in a mile?")

	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		shared  atomic.Int32
	)
	started.Add(n)
	for range n {
		wg.Go(func() {
			started.Done()
			e, cached, err := c.Resolve(context.Background(), fp, classify)
			if err != nil {
				t.Errorf("Resolve error: %v", err)
				return
			}
			if e.Label != records.Numeric {
				t.Errorf("label = %s, want NUM", e.Label)
			}
			if cached {
				shared.Add(1)
			}
		})
	}

	started.Wait()
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("oracle calls = %d, want 1", got)
	}
	if got := shared.Load(); got != n-1 {
		t.Errorf("cached results = %d, want %d", got, n-1)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestResolveFailureNotRecorded(t *testing.T) {
	c := cache.New(nil, discard)
	boom := errors.New("boom")

	_, _, err := c.Resolve(context.Background(), "fp", func(ctx context.Context) (records.Label, int, error) {
		return "", 3, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, ok := c.Get("fp"); ok {
		t.Fatal("failed classification should not be recorded")
	}

	e, cached, err := c.Resolve(context.Background(), "fp", func(ctx context.Context) (records.Label, int, error) {
		return records.Human, 1, nil
	})
	if err != nil || cached || e.Label != records.Human {
		t.Errorf("retry = %+v, cached=%v, err=%v", e, cached, err)
	}
}

func TestResolveWaiterHonoursContext(t *testing.T) {
	c := cache.New(nil, discard)
	release := make(chan struct{})
	defer close(release)

	entered := make(chan struct{})
	go c.Resolve(context.Background(), "fp", func(ctx context.Context) (records.Label, int, error) {
		close(entered)
		<-release
		return records.Location, 1, nil
	})
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := c.Resolve(ctx, "fp", func(ctx context.Context) (records.Label, int, error) {
		t.Error("waiter must not start a second call")
		return "", 0, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestResolveWaiterOutlivesCancelledCaller(t *testing.T) {
	c := cache.New(nil, discard)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	entered := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, _, err := c.Resolve(leaderCtx, "fp", func(ctx context.Context) (records.Label, int, error) {
			close(entered)
			<-ctx.Done()
			return "", 1, ctx.Err()
		})
		leaderDone <- err
	}()
	<-entered

	type result struct {
		entry  cache.Entry
		cached bool
		err    error
	}
	waiterDone := make(chan result, 1)
	go func() {
		e, cached, err := c.Resolve(context.Background(), "fp", func(ctx context.Context) (records.Label, int, error) {
			return records.Entity, 1, nil
		})
		waiterDone <- result{e, cached, err}
	}()

	time.Sleep(10 * time.Millisecond)
	cancelLeader()

	if err := <-leaderDone; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v, want context.Canceled", err)
	}

	select {
	case r := <-waiterDone:
		if r.err != nil {
			t.Fatalf("waiter err = %v, want success", r.err)
		}
		if r.entry.Label != records.Entity {
			t.Errorf("waiter label = %s, want ENTY", r.entry.Label)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not return")
	}

	if e, ok := c.Get("fp"); !ok || e.Label != records.Entity {
		t.Errorf("recorded entry = %+v, %v", e, ok)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "classifications.db")
	store, err := cache.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	first := cache.Entry{Fingerprint: "a", Label: records.Numeric, Latency: 1500 * time.Millisecond, Attempts: 2}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := store.Save(ctx, cache.Entry{Fingerprint: "a", Label: records.Human, Attempts: 1}); err != nil {
		t.Fatalf("second Save error: %v", err)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if diff := cmp.Diff([]cache.Entry{first}, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	c := cache.New(store, discard)
	n, err := c.Warm(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Warm = %d, %v", n, err)
	}
	e, cached, err := c.Resolve(ctx, "a", func(ctx context.Context) (records.Label, int, error) {
		t.Error("warmed entry must not be reclassified")
		return "", 0, nil
	})
	if err != nil || !cached || e.Label != records.Numeric {
		t.Errorf("Resolve = %+v, cached=%v, err=%v", e, cached, err)
	}
}
