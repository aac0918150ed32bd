/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

// Package pgx registers the github.com/jackc/pgx/v5 database/sql driver ("pgx")
// and tells the transaction coordinator which of its errors are worth retrying.
package pgx

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/acronis/go-dbtx"
)

// nolint
func init() {
	dbtx.RegisterIsRetryableFunc(&stdlib.Driver{}, func(err error) bool {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch ErrCode(pgErr.Code) {
			case ErrCodeDeadlockDetected, ErrCodeSerializationFailure:
				return true
			}
		}
		return CheckInvalidCachedPlanError(err)
	})
}

// ErrCode defines the type for Postgres error codes.
type ErrCode string

// Postgres error codes (will be filled gradually).
const (
	ErrCodeUniqueViolation      ErrCode = "23505"
	ErrCodeUndefinedTable       ErrCode = "42P01"
	ErrCodeDeadlockDetected     ErrCode = "40P01"
	ErrCodeSerializationFailure ErrCode = "40001"
	ErrCodeFeatureNotSupported  ErrCode = "0A000"
)

// CheckPostgresError checks if the passed error relates to Postgres and it's internal code matches the one from the argument.
func CheckPostgresError(err error, errCode ErrCode) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == string(errCode)
	}
	return false
}

// CheckInvalidCachedPlanError checks if the error is "cached plan must not change result type".
// It happens when the schema changes under a prepared statement, the statement is dropped from the cache,
// so repeating the transaction succeeds.
func CheckInvalidCachedPlanError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == string(ErrCodeFeatureNotSupported) && pgErr.Message == "cached plan must not change result type"
	}
	return false
}
