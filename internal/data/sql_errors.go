package data

import (
	"errors"

	"github.com/lib/pq"

	"github.com/opsplane/opsplane-backend/internal/utils"
)

const (
	pqUniqueViolationCode   = "23505"
	pqDeadlockDetectedCode  = "40P01"
	pqSerializationFailCode = "40001"
)

// IsUniqueViolation reports whether err is a Postgres unique violation,
// optionally on a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolationCode {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsTransientDBError reports whether err is a deadlock or serialization
// failure that is safe to retry once at the service layer.
func IsTransientDBError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqDeadlockDetectedCode || pqErr.Code == pqSerializationFailCode
}

// TruncateError caps stored error strings so a pathological driver message
// cannot bloat the row.
func TruncateError(msg string) string {
	return utils.TruncateString(msg, 1000)
}
