package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/JaimeStill/pairwise/pkg/repository"
)

type row struct {
	ID    int
	Label string
}

func scanRow(s repository.Scanner) (row, error) {
	var r row
	err := s.Scan(&r.ID, &r.Label)
	return r, err
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "repo.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestQueryHelpers(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	empty, err := repository.QueryMany(ctx, db, `SELECT id, label FROM items`, nil, scanRow)
	if err != nil {
		t.Fatalf("QueryMany on empty table: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}

	for _, label := range []string{"a", "b"} {
		if err := repository.ExecExpectOne(ctx, db, `INSERT INTO items (label) VALUES (?)`, label); err != nil {
			t.Fatalf("insert %s: %v", label, err)
		}
	}

	got, err := repository.QueryMany(ctx, db, `SELECT id, label FROM items ORDER BY id`, nil, scanRow)
	if err != nil {
		t.Fatalf("QueryMany: %v", err)
	}
	want := []row{{1, "a"}, {2, "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	one, err := repository.QueryOne(ctx, db, `SELECT id, label FROM items WHERE id = ?`, []any{2}, scanRow)
	if err != nil || one.Label != "b" {
		t.Errorf("QueryOne: got %+v, %v", one, err)
	}

	_, err = repository.QueryOne(ctx, db, `SELECT id, label FROM items WHERE id = ?`, []any{9}, scanRow)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("QueryOne missing row: got %v, want sql.ErrNoRows", err)
	}

	err = repository.ExecExpectOne(ctx, db, `DELETE FROM items WHERE id = ?`, 9)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ExecExpectOne no rows: got %v, want sql.ErrNoRows", err)
	}
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	boom := errors.New("boom")

	err := repository.WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (label) VALUES ('rolled back')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = repository.WithTx(ctx, db, func(tx *sql.Tx) error {
		return repository.ExecExpectOne(ctx, tx, `INSERT INTO items (label) VALUES ('kept')`)
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	labels, err := repository.QueryMany(ctx, db, `SELECT id, label FROM items`, nil, scanRow)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 1 || labels[0].Label != "kept" {
		t.Errorf("expected only the committed row, got %+v", labels)
	}
}
