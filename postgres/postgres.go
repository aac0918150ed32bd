/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

// Package postgres registers the github.com/lib/pq database/sql driver ("postgres")
// and tells the transaction coordinator which of its errors are worth retrying.
package postgres

import (
	"errors"

	"github.com/lib/pq"

	"github.com/acronis/go-dbtx"
)

// nolint
func init() {
	dbtx.RegisterIsRetryableFunc(&pq.Driver{}, func(err error) bool {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch ErrCode(pqErr.Code) {
			case ErrCodeDeadlockDetected, ErrCodeSerializationFailure:
				return true
			}
		}
		return false
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
)

// CheckPostgresError checks if the passed error relates to Postgres and it's internal code matches the one from the argument.
func CheckPostgresError(err error, errCode ErrCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pq.ErrorCode(errCode)
	}
	return false
}
