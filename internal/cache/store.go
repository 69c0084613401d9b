package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JaimeStill/pairwise/internal/records"
	"github.com/JaimeStill/pairwise/pkg/repository"
)

// Cache backends accepted by configuration.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store persists cache entries so that classifications survive across runs.
// Save must keep the first entry written for a fingerprint.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, e Entry) error
}

type queries struct {
	selectAll string
	insert    string
}

var postgresQueries = queries{
	selectAll: `SELECT fingerprint, label, latency_ms, attempts FROM classifications`,
	insert: `INSERT INTO classifications (fingerprint, label, latency_ms, attempts)
VALUES ($1, $2, $3, $4)
ON CONFLICT (fingerprint) DO NOTHING`,
}

var sqliteQueries = queries{
	selectAll: `SELECT fingerprint, label, latency_ms, attempts FROM classifications`,
	insert: `INSERT INTO classifications (fingerprint, label, latency_ms, attempts)
VALUES (?, ?, ?, ?)
ON CONFLICT (fingerprint) DO NOTHING`,
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS classifications (
	fingerprint TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// SQLStore is a Store over a database/sql connection. The classifications
// table must exist; for Postgres it is created by cmd/migrate.
type SQLStore struct {
	db     *sql.DB
	q      queries
	closer func() error
}

// NewPostgresStore returns a Store over an open Postgres pool. The pool's
// lifecycle remains owned by the caller.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: postgresQueries}
}

// OpenSQLite opens (creating if needed) a local SQLite cache database at
// path.
func OpenSQLite(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLStore{db: db, q: sqliteQueries, closer: db.Close}, nil
}

func (s *SQLStore) Load(ctx context.Context) ([]Entry, error) {
	return repository.QueryMany(ctx, s.db, s.q.selectAll, nil, scanEntry)
}

func (s *SQLStore) Save(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, s.q.insert,
		e.Fingerprint,
		string(e.Label),
		e.Latency.Milliseconds(),
		e.Attempts,
	)
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// Close releases connections opened by OpenSQLite. It is a no-op for
// stores over caller-owned pools.
func (s *SQLStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var (
		e       Entry
		label   string
		latency int64
	)
	if err := s.Scan(&e.Fingerprint, &label, &latency, &e.Attempts); err != nil {
		return Entry{}, err
	}
	e.Label = records.Label(label)
	e.Latency = time.Duration(latency) * time.Millisecond
	return e, nil
}
