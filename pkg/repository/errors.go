package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// ErrSchemaMissing indicates a statement against a table that has not been
// created. Run cmd/migrate against the database.
var ErrSchemaMissing = errors.New("database schema missing")

// MapError translates database errors to domain errors. sql.ErrNoRows
// becomes notFoundErr and a PostgreSQL unique violation becomes
// duplicateErr; a nil domain error leaves that case unmapped. An undefined
// table is reported as ErrSchemaMissing. Other errors are returned
// unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if notFoundErr != nil && errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && duplicateErr != nil:
			return duplicateErr
		case pgErr.Code == pgUndefinedTable:
			return errors.Join(ErrSchemaMissing, err)
		}
	}

	return err
}
