package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict indicates a uniqueness violation not attributable to a known
// named constraint.
var ErrConflict = errors.New("record conflict")

// isUniqueViolation reports whether err is a unique violation, optionally
// narrowed to one named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// isForeignKeyViolation reports whether err is a foreign key violation,
// optionally narrowed to one named constraint.
func isForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
