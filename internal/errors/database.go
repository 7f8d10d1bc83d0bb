package errors

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation = pq.ErrorCode("23505")
)

// UniqueViolation returns the violated constraint name when err is a postgres unique violation
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// FromDatabase classifies a driver error into one of the sentinels.
// hint is shown to callers, details are attached for reporting.
func FromDatabase(err error, hint string, details map[string]any) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return WithError(err).
			WithHint(hint).
			WithReportableDetails(details).
			Mark(ErrNotFound)
	}

	if constraint, ok := UniqueViolation(err); ok {
		if details == nil {
			details = map[string]any{}
		}
		details["constraint"] = constraint
		return WithError(err).
			WithHint(hint).
			WithReportableDetails(details).
			Mark(ErrAlreadyExists)
	}

	return WithError(err).
		WithHint(hint).
		WithReportableDetails(details).
		Mark(ErrDatabase)
}
