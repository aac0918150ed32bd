/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

// Package sqlite registers the github.com/mattn/go-sqlite3 database/sql driver ("sqlite3")
// and tells the transaction coordinator which of its errors are worth retrying.
package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/acronis/go-dbtx"
)

// nolint
func init() {
	dbtx.RegisterIsRetryableFunc(&sqlite3.SQLiteDriver{}, func(err error) bool {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			switch sqliteErr.Code {
			case sqlite3.ErrBusy, sqlite3.ErrLocked:
				return true
			}
		}
		return false
	})
}

// CheckSQLiteError checks if the passed error relates to SQLite and it's extended code matches the one from the argument.
func CheckSQLiteError(err error, errCode sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == errCode
	}
	return false
}
