/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

// Package mssql registers the github.com/microsoft/go-mssqldb database/sql driver ("mssql", "sqlserver")
// and tells the transaction coordinator which of its errors are worth retrying.
package mssql

import (
	"errors"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/acronis/go-dbtx"
)

// nolint
func init() {
	dbtx.RegisterIsRetryableFunc(&mssql.Driver{}, func(err error) bool {
		var msErr mssql.Error
		if errors.As(err, &msErr) {
			return ErrCode(msErr.Number) == ErrDeadlock
		}
		return false
	})
}

// ErrCode defines the type for MSSQL error numbers.
type ErrCode int32

// MSSQL error numbers (will be filled gradually).
const (
	ErrDeadlock         ErrCode = 1205
	ErrCodeDupKey       ErrCode = 2627
	ErrCodeDupKeyIndex  ErrCode = 2601
	ErrCodeInvalidTable ErrCode = 208
)

// CheckMSSQLError checks if the passed error relates to MSSQL and it's number matches the one from the argument.
func CheckMSSQLError(err error, errCode ErrCode) bool {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == int32(errCode)
	}
	return false
}
