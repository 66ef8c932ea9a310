package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgresUniqueViolation is Postgres' SQLSTATE for a unique constraint
// violation (https://www.postgresql.org/docs/current/errcodes-appendix.html).
const postgresUniqueViolation = "23505"

// isUniqueViolation reports whether err wraps a Postgres unique constraint
// violation, used where a CREATE racing a concurrent duplicate insert is
// an expected outcome rather than a failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	return false
}
