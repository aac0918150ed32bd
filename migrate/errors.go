/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package migrate

import "strings"

// ErrorCode identifies the reason Migrate or NewMigrator failed.
type ErrorCode string

// Error codes.
// NoDir and Filename are configuration errors, InTransaction is a usage error. VersionSeq, Checksum and MissingScript are integrity errors,
// they abort Migrate before any script is executed.
const (
	ErrorCodeNoDir         ErrorCode = "NO_DIR"
	ErrorCodeNoFiles       ErrorCode = "NO_FILES"
	ErrorCodeFilename      ErrorCode = "FILENAME"
	ErrorCodeVersionSeq    ErrorCode = "VERSION_SEQ"
	ErrorCodeChecksum      ErrorCode = "CHECKSUM"
	ErrorCodeMissingScript ErrorCode = "MISSING_SCRIPT"
	ErrorCodeInTransaction ErrorCode = "IN_TRANSACTION"
)

var errorCodeMessages = map[ErrorCode]string{
	ErrorCodeNoDir:         "specified location is not a directory",
	ErrorCodeNoFiles:       "no migration scripts found in location",
	ErrorCodeFilename:      "version must be included in script filename",
	ErrorCodeVersionSeq:    "a version was not incremented by 1",
	ErrorCodeChecksum:      "checksum differs from applied migration",
	ErrorCodeMissingScript: "applied migration script is missing in location",
	ErrorCodeInTransaction: "migrations cannot run inside a transaction",
}

// Message returns a human-readable description of the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorCodeMessages[c]; ok {
		return msg
	}
	return string(c)
}

// Error is returned when migration scripts or the ledger are not consistent.
// Use errors.Is with the Err* sentinels to check the code.
type Error struct {
	Code   ErrorCode
	Detail string
	Err    error
}

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrNoDir         = &Error{Code: ErrorCodeNoDir}
	ErrNoFiles       = &Error{Code: ErrorCodeNoFiles}
	ErrFilename      = &Error{Code: ErrorCodeFilename}
	ErrVersionSeq    = &Error{Code: ErrorCodeVersionSeq}
	ErrChecksum      = &Error{Code: ErrorCodeChecksum}
	ErrMissingScript = &Error{Code: ErrorCodeMissingScript}
	ErrInTransaction = &Error{Code: ErrorCodeInTransaction}
)

func newError(code ErrorCode, detail string, err error) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.Message())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}
