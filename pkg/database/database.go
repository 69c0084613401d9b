// Package database opens the Postgres pool shared by the postgres
// checkpoint and cache backends.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/pairwise/pkg/lifecycle"
)

// System is a Postgres pool bound to the lifecycle.
type System interface {
	// Connection returns the pool. It is closed on shutdown.
	Connection() *sql.DB
	// Ping checks connectivity within the configured timeout and returns
	// ErrNotReady when the server cannot be reached.
	Ping(ctx context.Context) error
	// Require returns ErrNotMigrated naming the first table that does not
	// exist.
	Require(ctx context.Context, tables ...string) error
	// Start pings on startup and closes the pool on shutdown.
	Start(lc *lifecycle.Coordinator) error
}

type postgres struct {
	db          *sql.DB
	logger      *slog.Logger
	connTimeout time.Duration
}

// New opens the pool without connecting. The first connection is made by
// the startup ping or the first query.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &postgres{
		db:          db,
		logger:      logger.With("system", "database", "host", cfg.Host, "name", cfg.Name),
		connTimeout: cfg.ConnTimeoutDuration(),
	}, nil
}

func (p *postgres) Connection() *sql.DB {
	return p.db
}

func (p *postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.connTimeout)
	defer cancel()

	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

func (p *postgres) Require(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		var exists bool
		err := p.db.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("%w: table %s does not exist", ErrNotMigrated, table)
		}
	}
	return nil
}

func (p *postgres) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() error {
		start := time.Now()
		if err := p.Ping(lc.Context()); err != nil {
			p.logger.Error("database unreachable", "error", err)
			return err
		}
		p.logger.Info("database connected", "elapsed", time.Since(start))
		return nil
	})

	lc.OnShutdown(func() {
		if err := p.db.Close(); err != nil {
			p.logger.Error("database close failed", "error", err)
			return
		}
		p.logger.Debug("database closed")
	})

	return nil
}
