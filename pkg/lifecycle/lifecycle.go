// Package lifecycle coordinates the startup and shutdown of the systems a
// command depends on.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ReadinessChecker reports whether every system has started.
type ReadinessChecker interface {
	Ready() bool
}

// Coordinator runs startup hooks concurrently, records their failures, and
// runs shutdown hooks once its context ends.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	startup  sync.WaitGroup
	shutdown sync.WaitGroup

	mu       sync.Mutex
	ready    bool
	failures []error
}

// New creates a Coordinator whose context is derived from parent.
// Cancelling parent has the same effect on hooks as Shutdown.
func New(parent context.Context) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// Context is cancelled when shutdown begins.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn in its own goroutine. A returned error is reported by
// WaitForStartup and keeps the coordinator from becoming ready.
func (c *Coordinator) OnStartup(fn func() error) {
	c.startup.Go(func() {
		if err := fn(); err != nil {
			c.mu.Lock()
			c.failures = append(c.failures, err)
			c.mu.Unlock()
		}
	})
}

// OnShutdown runs fn after the context is cancelled.
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdown.Go(func() {
		<-c.ctx.Done()
		fn()
	})
}

// Ready reports whether startup completed without failures and shutdown
// has not begun.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitForStartup blocks until every startup hook has returned and joins
// their errors.
func (c *Coordinator) WaitForStartup() error {
	c.startup.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.failures) > 0 {
		return fmt.Errorf("startup: %w", errors.Join(c.failures...))
	}
	c.ready = c.ctx.Err() == nil
	return nil
}

// Shutdown cancels the context and waits up to timeout for the shutdown
// hooks to return.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.shutdown.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
