package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation.
// Postgres errors from pgx or lib/pq are matched on SQLSTATE and constraint
// name; anything else falls back to the driver message, where a non-empty
// constraint must appear verbatim (SQLite reports "table.column").
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if code, name, ok := pgErrorFields(err); ok {
		return code == pgUniqueViolation && (constraint == "" || name == constraint)
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}

func pgErrorFields(err error) (code, constraint string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}
