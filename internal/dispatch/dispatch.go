// Package dispatch classifies batches of units through the oracle with
// bounded concurrency, per-call timeouts, retries and rate limiting.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JaimeStill/pairwise/internal/cache"
	"github.com/JaimeStill/pairwise/internal/oracle"
	"github.com/JaimeStill/pairwise/internal/records"
)

var (
	// ErrClassificationFailed indicates a unit whose oracle calls exhausted
	// every retry.
	ErrClassificationFailed = errors.New("classification failed")
	// ErrOracleTimeout indicates a single oracle call exceeded its timeout.
	ErrOracleTimeout = errors.New("oracle call timed out")
	// ErrInterrupted indicates a unit left unfinished because the batch
	// context ended. Interrupted units remain pending.
	ErrInterrupted = errors.New("classification interrupted")
)

// Config bounds how the dispatcher calls the oracle.
type Config struct {
	Concurrency    int
	CallTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
	RateLimit      float64
	Burst          int
}

// Result is the outcome of classifying one unit: a label or an error.
type Result struct {
	Label    records.Label
	Err      error
	Cached   bool
	Attempts int
}

// Results maps unit ids to their outcomes.
type Results map[string]Result

// Labels returns the successfully classified units.
func (r Results) Labels() map[string]records.Label {
	out := make(map[string]records.Label)
	for id, res := range r {
		if res.Err == nil {
			out[id] = res.Label
		}
	}
	return out
}

// Failed returns the ids of units that exhausted their retries, sorted.
func (r Results) Failed() []string {
	return r.ids(func(res Result) bool {
		return res.Err != nil && !errors.Is(res.Err, ErrInterrupted)
	})
}

// Interrupted returns the ids of units cut short by cancellation, sorted.
func (r Results) Interrupted() []string {
	return r.ids(func(res Result) bool {
		return errors.Is(res.Err, ErrInterrupted)
	})
}

// Coverage returns the share of units that were classified.
func (r Results) Coverage() float64 {
	if len(r) == 0 {
		return 1
	}
	ok := 0
	for _, res := range r {
		if res.Err == nil {
			ok++
		}
	}
	return float64(ok) / float64(len(r))
}

func (r Results) ids(match func(Result) bool) []string {
	var out []string
	for id, res := range r {
		if match(res) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Dispatcher fans units out to the oracle. A Dispatcher is safe for
// sequential reuse across batches.
type Dispatcher struct {
	oracle  oracle.Oracle
	cache   *cache.Cache
	cfg     Config
	limiter *rate.Limiter
	metrics *metrics
	logger  *slog.Logger
}

// New creates a Dispatcher. reg may be nil, in which case metrics are kept
// but not registered.
func New(o oracle.Oracle, c *cache.Cache, cfg Config, reg prometheus.Registerer, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		oracle:  o,
		cache:   c,
		cfg:     cfg,
		metrics: newMetrics(reg),
		logger:  logger.With("system", "dispatch"),
	}
	if cfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return d
}

// Dispatch classifies every unit and returns one Result per unit id.
// Failures never abort the batch. When ctx ends, in-flight calls are
// cancelled and every unit without a label is reported as ErrInterrupted.
func (d *Dispatcher) Dispatch(ctx context.Context, units []records.Unit) Results {
	results := make(Results, len(units))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(d.workerCount(len(units)))

	for _, u := range units {
		g.Go(func() error {
			res := d.classify(ctx, u)
			mu.Lock()
			results[u.ID] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	d.logger.InfoContext(ctx, "batch dispatched",
		"units", len(units),
		"coverage", results.Coverage(),
		"failed", len(results.Failed()),
		"interrupted", len(results.Interrupted()),
	)

	return results
}

func (d *Dispatcher) workerCount(n int) int {
	limit := d.cfg.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return max(min(limit, n), 1)
}

func (d *Dispatcher) classify(ctx context.Context, u records.Unit) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrInterrupted, err)}
	}

	entry, cached, err := d.cache.Resolve(ctx, u.Fingerprint(), func(ctx context.Context) (records.Label, int, error) {
		return d.call(ctx, u)
	})

	if err != nil {
		if ctx.Err() != nil {
			return Result{Err: fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())}
		}
		d.logger.WarnContext(ctx, "unit classification failed",
			"unit", u.ID,
			"error", err,
		)
		return Result{Err: err}
	}

	if cached {
		d.metrics.cacheHits.Inc()
	}
	return Result{Label: entry.Label, Cached: cached, Attempts: entry.Attempts}
}

// call runs the oracle with retries. It returns the number of attempts made.
func (d *Dispatcher) call(ctx context.Context, u records.Unit) (records.Label, int, error) {
	backoff := d.cfg.InitialBackoff
	attempts := 0

	var last error
	for attempts <= d.cfg.MaxRetries {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return "", attempts, fmt.Errorf("%w: %w", ErrInterrupted, err)
			}
		}

		attempts++
		label, err := d.attempt(ctx, u.Text)
		if err == nil {
			return label, attempts, nil
		}
		if ctx.Err() != nil {
			return "", attempts, ctx.Err()
		}
		last = err

		if attempts > d.cfg.MaxRetries {
			break
		}

		d.metrics.retries.Inc()
		wait := jitter(backoff, d.cfg.JitterFactor)
		d.logger.DebugContext(ctx, "retrying oracle call",
			"unit", u.ID,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", attempts, ctx.Err()
		case <-time.After(wait):
		}

		backoff = min(backoff*2, d.cfg.MaxBackoff)
	}

	return "", attempts, fmt.Errorf("%w: unit %s after %d attempts: %w", ErrClassificationFailed, u.ID, attempts, last)
}

func (d *Dispatcher) attempt(ctx context.Context, text string) (records.Label, error) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if d.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.cfg.CallTimeout)
	}
	defer cancel()

	d.metrics.inflight.Inc()
	start := time.Now()
	label, err := d.oracle.Classify(callCtx, text)
	d.metrics.latency.Observe(time.Since(start).Seconds())
	d.metrics.inflight.Dec()

	switch {
	case err == nil:
		d.metrics.calls.WithLabelValues(outcomeSuccess).Inc()
		return label, nil
	case ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		d.metrics.calls.WithLabelValues(outcomeTimeout).Inc()
		return "", fmt.Errorf("%w after %s: %w", ErrOracleTimeout, d.cfg.CallTimeout, err)
	default:
		d.metrics.calls.WithLabelValues(outcomeError).Inc()
		return "", err
	}
}

// jitter spreads base by up to ±factor.
func jitter(base time.Duration, factor float64) time.Duration {
	if factor <= 0 || base <= 0 {
		return base
	}
	return time.Duration(float64(base) * (1 + (rand.Float64()*2-1)*factor))
}
