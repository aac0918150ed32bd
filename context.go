/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package dbtx

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
)

// Errors returned when the context does not carry what the caller asks for.
// They signal misuse of the package and are never produced by the database itself.
var (
	ErrDataSourceNotAvailable        = errors.New("datasource not available in context")
	ErrConnectionNotAvailable        = errors.New("connection not available in context")
	ErrNestedTransactionNotSupported = errors.New("nested transaction not supported: enclosing transaction is already completed")
	ErrTransactionCompleted          = errors.New("transaction is already completed")
)

// SQLExecutor is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ SQLExecutor = (*sql.DB)(nil)
	_ SQLExecutor = (*sql.Conn)(nil)
	_ SQLExecutor = (*sql.Tx)(nil)
)

type ctxKey int

const (
	dataSourceCtxKey ctxKey = iota
	connCtxKey
	scopeCtxKey
)

// pinnedConn is a connection checked out by WithConnection outside of any transaction.
type pinnedConn struct {
	conn     *sql.Conn
	released atomic.Bool
}

// txScope is one top-level transaction. It owns the connection from checkout till release.
type txScope struct {
	id        string
	conn      *sql.Conn
	tx        *sql.Tx
	completed atomic.Bool
}

func (s *txScope) complete() {
	s.completed.Store(true)
}

func (s *txScope) isCompleted() bool {
	return s.completed.Load()
}

// WithDataSource returns a copy of ctx that carries the data source.
// Transaction and WithConnection check out connections from it.
func WithDataSource(ctx context.Context, ds *DataSource) context.Context {
	return context.WithValue(ctx, dataSourceCtxKey, ds)
}

// DataSourceFrom returns the data source carried by ctx or ErrDataSourceNotAvailable.
func DataSourceFrom(ctx context.Context) (*DataSource, error) {
	if ds, ok := ctx.Value(dataSourceCtxKey).(*DataSource); ok && ds != nil {
		return ds, nil
	}
	return nil, ErrDataSourceNotAvailable
}

// ConnFrom returns the connection checked out for the current call chain.
// Inside a transaction it is the connection the transaction runs on.
func ConnFrom(ctx context.Context) (*sql.Conn, error) {
	if scope := scopeFrom(ctx); scope != nil {
		if scope.isCompleted() {
			return nil, ErrTransactionCompleted
		}
		return scope.conn, nil
	}
	if p := pinnedConnFrom(ctx); p != nil {
		return p.conn, nil
	}
	return nil, ErrConnectionNotAvailable
}

// TxFrom returns the transaction of the current call chain.
func TxFrom(ctx context.Context) (*sql.Tx, error) {
	scope := scopeFrom(ctx)
	if scope == nil {
		return nil, ErrConnectionNotAvailable
	}
	if scope.isCompleted() {
		return nil, ErrTransactionCompleted
	}
	return scope.tx, nil
}

// Executor returns the object statements of the current call chain must go through:
// the active transaction, or the connection pinned by WithConnection when there is no transaction.
func Executor(ctx context.Context) (SQLExecutor, error) {
	if scope := scopeFrom(ctx); scope != nil {
		if scope.isCompleted() {
			return nil, ErrTransactionCompleted
		}
		return scope.tx, nil
	}
	if p := pinnedConnFrom(ctx); p != nil {
		return p.conn, nil
	}
	return nil, ErrConnectionNotAvailable
}

// InTransaction reports whether ctx carries an active (not completed) transaction.
func InTransaction(ctx context.Context) bool {
	scope := scopeFrom(ctx)
	return scope != nil && !scope.isCompleted()
}

func scopeFrom(ctx context.Context) *txScope {
	scope, _ := ctx.Value(scopeCtxKey).(*txScope)
	return scope
}

func withScope(ctx context.Context, scope *txScope) context.Context {
	return context.WithValue(ctx, scopeCtxKey, scope)
}

// pinnedConnFrom returns the pinned connection unless it was already given back to the pool.
func pinnedConnFrom(ctx context.Context) *pinnedConn {
	p, _ := ctx.Value(connCtxKey).(*pinnedConn)
	if p == nil || p.released.Load() {
		return nil
	}
	return p
}
