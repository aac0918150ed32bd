/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

// Package mysql registers the github.com/go-sql-driver/mysql database/sql driver ("mysql")
// and tells the transaction coordinator which of its errors are worth retrying.
package mysql

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/acronis/go-dbtx"
)

// nolint
func init() {
	dbtx.RegisterIsRetryableFunc(&mysql.MySQLDriver{}, func(err error) bool {
		var mySQLError *mysql.MySQLError
		if errors.As(err, &mySQLError) {
			switch ErrCode(mySQLError.Number) {
			case ErrDeadlock, ErrLockWaitTimeout:
				return true
			}
		}
		return false
	})
}

// ErrCode defines the type for MySQL error codes.
type ErrCode uint16

// MySQL error codes (will be filled gradually).
const (
	ErrCodeDupEntry    ErrCode = 1062
	ErrDeadlock        ErrCode = 1213
	ErrLockWaitTimeout ErrCode = 1205
)

// CheckMySQLError checks if the passed error relates to MySQL and it's internal code matches the one from the argument.
func CheckMySQLError(err error, errCode ErrCode) bool {
	var mySQLError *mysql.MySQLError
	if errors.As(err, &mySQLError) {
		return mySQLError.Number == uint16(errCode)
	}
	return false
}
