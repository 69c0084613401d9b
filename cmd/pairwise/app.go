package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/JaimeStill/pairwise/internal/cache"
	"github.com/JaimeStill/pairwise/internal/checkpoint"
	"github.com/JaimeStill/pairwise/internal/config"
	"github.com/JaimeStill/pairwise/internal/controller"
	"github.com/JaimeStill/pairwise/internal/dispatch"
	"github.com/JaimeStill/pairwise/internal/infrastructure"
	"github.com/JaimeStill/pairwise/internal/oracle"
	"github.com/JaimeStill/pairwise/internal/records"
	"github.com/JaimeStill/pairwise/pkg/formatting"
)

const blobScheme = "blob://"

// app holds the systems a command runs against. Only the checkpoint store
// is built eagerly; the classification stack is added by engine.
type app struct {
	cfg     *config.Config
	infra   *infrastructure.Infrastructure
	store   checkpoint.Store
	logger  *slog.Logger
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	infra, err := infrastructure.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		infra:  infra,
		logger: infra.Logger.With("system", "cli"),
	}

	if err := infra.Start(); err != nil {
		return nil, err
	}

	store, err := a.checkpointStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	return a, nil
}

// Ready blocks until the startup hooks of every configured system have
// run. It fails when the database is unreachable, the blob container
// cannot be created, or a postgres backend's tables are missing.
func (a *app) Ready(ctx context.Context) error {
	if err := a.infra.Lifecycle.WaitForStartup(); err != nil {
		return err
	}
	if tables := a.requiredTables(); len(tables) > 0 {
		if err := a.infra.Database.Require(ctx, tables...); err != nil {
			return err
		}
	}
	a.logger.Debug("all subsystems ready")
	return nil
}

func (a *app) requiredTables() []string {
	var tables []string
	if a.cfg.Checkpoint.Backend == config.CheckpointPostgres {
		tables = append(tables, "checkpoints", "checkpoint_history")
	}
	if a.cfg.Cache.Backend == config.CachePostgres {
		tables = append(tables, "classifications")
	}
	return tables
}

func (a *app) checkpointStore() (checkpoint.Store, error) {
	switch a.cfg.Checkpoint.Backend {
	case config.CheckpointFile:
		fileStore, err := checkpoint.NewFileStore(a.cfg.Checkpoint.Dir)
		if err != nil {
			return nil, err
		}
		return fileStore, nil
	case config.CheckpointPostgres:
		return checkpoint.NewPostgresStore(a.infra.Database.Connection()), nil
	case config.CheckpointBlob:
		return checkpoint.NewBlobStore(a.infra.Storage), nil
	default:
		return nil, fmt.Errorf("%w: %q", checkpoint.ErrUnknownBackend, a.cfg.Checkpoint.Backend)
	}
}

func (a *app) classificationCache(ctx context.Context) (*cache.Cache, error) {
	var store cache.Store

	switch a.cfg.Cache.Backend {
	case config.CacheMemory:
	case config.CacheSQLite:
		s, err := cache.OpenSQLite(a.cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		store = s
	case config.CachePostgres:
		store = cache.NewPostgresStore(a.infra.Database.Connection())
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}

	c := cache.New(store, a.infra.Logger)
	if _, err := c.Warm(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// engine assembles the oracle, cache, dispatcher and controller.
func (a *app) engine(ctx context.Context) (*controller.Controller, error) {
	o, err := oracle.New(a.cfg.Oracle.Kind, &a.cfg.Agent, a.cfg.Oracle.LookupPath, a.infra.Logger)
	if err != nil {
		return nil, err
	}

	c, err := a.classificationCache(ctx)
	if err != nil {
		return nil, err
	}

	d := a.cfg.Dispatch
	dispatcher := dispatch.New(o, c, dispatch.Config{
		Concurrency:    d.Concurrency,
		CallTimeout:    d.CallTimeoutDuration(),
		MaxRetries:     d.MaxRetries,
		InitialBackoff: d.InitialBackoffDuration(),
		MaxBackoff:     d.MaxBackoffDuration(),
		JitterFactor:   d.JitterFactor,
		RateLimit:      d.RateLimit,
		Burst:          d.Burst,
	}, a.infra.Registry, a.infra.Logger)

	a.logger.Info(
		"engine initialized",
		"oracle", a.cfg.Oracle.Kind,
		"cache", a.cfg.Cache.Backend,
		"checkpoint", a.cfg.Checkpoint.Backend,
		"concurrency", d.Concurrency,
	)

	return controller.New(&controller.Runtime{
		Store:      a.store,
		Dispatcher: dispatcher,
		Oracle:     o,
		Logger:     a.infra.Logger,
	}, a.infra.Registry), nil
}

// options converts the engine and records sections into run options.
func (a *app) options() (controller.Options, error) {
	seq, err := controller.ParseSequence(a.cfg.Engine.Sequence)
	if err != nil {
		return controller.Options{}, err
	}

	d, err := records.New(a.cfg.Records.Mode, a.cfg.Records.MaxUnitSizeBytes())
	if err != nil {
		return controller.Options{}, err
	}

	e := a.cfg.Engine
	return controller.Options{
		MaxIterations:     e.MaxIterations,
		Sequence:          seq,
		BatchSize:         e.BatchSize,
		IterationTimeout:  e.IterationTimeoutDuration(),
		CoverageThreshold: e.CoverageThreshold,
		Decomposer:        d,
		Narrative:         e.Narrative,
	}, nil
}

// readInput reads a local file, or a blob when source carries the blob://
// prefix.
func (a *app) readInput(ctx context.Context, source string) ([]byte, error) {
	key, isBlob := strings.CutPrefix(source, blobScheme)
	if !isBlob {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		a.logger.Info("input loaded", "path", source, "size", formatting.FormatBytes(int64(len(data)), 1))
		return data, nil
	}

	if a.infra.Storage == nil {
		return nil, usageErrorf("%s input requires a storage connection_string or account_url", blobScheme)
	}

	rc, err := a.infra.Storage.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download input: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read input blob: %w", err)
	}
	a.logger.Info("input downloaded", "key", key, "size", formatting.FormatBytes(int64(len(data)), 1))
	return data, nil
}

// Close releases local resources and shuts the lifecycle down.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	errs = append(errs, a.infra.Lifecycle.Shutdown(a.cfg.ShutdownTimeoutDuration()))
	return errors.Join(errs...)
}
