/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

package dbtx

import (
	"database/sql/driver"
	"reflect"
	"sync"

	"github.com/acronis/go-appkit/retry"
)

var retryableFuncs = struct {
	sync.RWMutex
	byDriver map[reflect.Type][]retry.IsRetryable
}{byDriver: make(map[reflect.Type][]retry.IsRetryable)}

// RegisterIsRetryableFunc registers a function that tells whether an error returned by the driver
// is transient (deadlock, serialization failure, etc.) and the whole transaction may be repeated.
// Driver-specific packages (pgx, postgres, mysql, sqlite, mssql) call it from their init functions.
func RegisterIsRetryableFunc(d driver.Driver, fn retry.IsRetryable) {
	retryableFuncs.Lock()
	defer retryableFuncs.Unlock()
	t := reflect.TypeOf(d)
	retryableFuncs.byDriver[t] = append(retryableFuncs.byDriver[t], fn)
}

// UnregisterAllIsRetryableFuncs removes all functions registered for the driver.
func UnregisterAllIsRetryableFuncs(d driver.Driver) {
	retryableFuncs.Lock()
	defer retryableFuncs.Unlock()
	delete(retryableFuncs.byDriver, reflect.TypeOf(d))
}

// GetIsRetryable returns a function that reports true if any of the functions registered for the driver does.
// Nil is returned when nothing is registered.
func GetIsRetryable(d driver.Driver) retry.IsRetryable {
	retryableFuncs.RLock()
	funcs := append([]retry.IsRetryable(nil), retryableFuncs.byDriver[reflect.TypeOf(d)]...)
	retryableFuncs.RUnlock()
	if len(funcs) == 0 {
		return nil
	}
	return func(err error) bool {
		for _, fn := range funcs {
			if fn(err) {
				return true
			}
		}
		return false
	}
}
