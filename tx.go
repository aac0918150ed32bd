/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package dbtx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/retry"
	"github.com/google/uuid"
)

// TxOption is a functional option for Transaction and TransactionValue.
// Options are applied only by the call that starts a top-level transaction; joined calls ignore them.
type TxOption func(*txOptions)

type txOptions struct {
	sqlOpts     *sql.TxOptions
	retryPolicy retry.Policy
}

// WithTxOptions sets isolation level and read-only mode of the top-level transaction.
func WithTxOptions(opts *sql.TxOptions) TxOption {
	return func(o *txOptions) {
		o.sqlOpts = opts
	}
}

// WithRetryPolicy makes the top-level call repeat the whole transaction when it fails with an error
// that the driver reports as retryable (see RegisterIsRetryableFunc).
// Nothing is retried without this option.
func WithRetryPolicy(policy retry.Policy) TxOption {
	return func(o *txOptions) {
		o.retryPolicy = policy
	}
}

// Transaction runs fn in a transaction carried by the context passed to fn.
//
// If ctx has no transaction yet, a connection is checked out from the data source of ctx,
// a transaction is started on it and fn is called. The transaction is committed when fn returns nil
// and rolled back when fn returns an error or panics. The connection is given back to the pool in any case,
// including cancellation of ctx. The error (or panic value) of fn is returned unchanged,
// rollback and release failures are only logged.
//
// If ctx already has an active transaction, fn joins it: it is called with the same context,
// nothing is committed or rolled back, and an error of fn makes the outermost call roll back everything.
//
// Calling Transaction with a context whose transaction is already completed
// (e.g. a context leaked out of a finished call) returns ErrNestedTransactionNotSupported.
func Transaction(ctx context.Context, fn func(ctx context.Context) error, options ...TxOption) error {
	_, err := TransactionValue(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, options...)
	return err
}

// TransactionValue is like Transaction, but fn also produces a value that is returned to the caller.
func TransactionValue[T any](
	ctx context.Context, fn func(ctx context.Context) (T, error), options ...TxOption,
) (T, error) {
	var zero T
	if scope := scopeFrom(ctx); scope != nil {
		if scope.isCompleted() {
			return zero, ErrNestedTransactionNotSupported
		}
		return fn(ctx)
	}

	ds, err := DataSourceFrom(ctx)
	if err != nil {
		return zero, err
	}
	opts := txOptions{sqlOpts: ds.txOpts}
	for _, opt := range options {
		opt(&opts)
	}

	if opts.retryPolicy == nil {
		return runInNewScope(ctx, ds, opts.sqlOpts, fn)
	}

	isRetryable := GetIsRetryable(ds.db.Driver())
	if isRetryable == nil {
		isRetryable = func(error) bool { return false }
	}
	var result T
	err = retry.DoWithRetry(ctx, opts.retryPolicy, isRetryable, nil, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = runInNewScope(ctx, ds, opts.sqlOpts, fn)
		return fnErr
	})
	return result, err
}

// WithConnection runs fn with a connection pinned to the context passed to fn, without starting a transaction.
// Top-level transactions started inside fn run one after another on this connection,
// so session-scoped state (e.g. advisory locks) survives between them.
// If ctx already carries a connection, fn reuses it.
// A pinned connection must not be used by several goroutines at the same time.
func WithConnection(ctx context.Context, fn func(ctx context.Context) error) error {
	if scope := scopeFrom(ctx); scope != nil && scope.isCompleted() {
		return ErrNestedTransactionNotSupported
	}
	if _, err := ConnFrom(ctx); err == nil {
		return fn(ctx)
	}
	ds, err := DataSourceFrom(ctx)
	if err != nil {
		return err
	}
	conn, release, err := ds.checkout(ctx)
	if err != nil {
		return err
	}
	defer release()

	p := &pinnedConn{conn: conn}
	defer p.released.Store(true)

	return fn(context.WithValue(ctx, connCtxKey, p))
}

// DiscardConn closes the connection of the current call chain instead of giving it back to the pool,
// so the database session ends together with its session-scoped state (e.g. advisory locks).
// Statements executed with ctx after that fail.
func DiscardConn(ctx context.Context) error {
	conn, err := ConnFrom(ctx)
	if err != nil {
		return err
	}
	err = conn.Raw(func(interface{}) error {
		return driver.ErrBadConn
	})
	if err != nil && !errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("discard connection: %w", err)
	}
	return nil
}

func runInNewScope[T any](
	ctx context.Context, ds *DataSource, sqlOpts *sql.TxOptions, fn func(ctx context.Context) (T, error),
) (result T, err error) {
	conn, release, err := ds.checkout(ctx)
	if err != nil {
		return result, err
	}
	defer release()

	tx, err := conn.BeginTx(ctx, sqlOpts)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}

	scope := &txScope{id: uuid.NewString(), conn: conn, tx: tx}
	startedAt := time.Now()
	outcome := TxOutcomeRollback
	defer func() {
		if p := recover(); p != nil {
			ds.rollback(scope, fmt.Errorf("panic: %v", p))
			scope.complete()
			ds.metrics.ObserveTx(outcome, time.Since(startedAt))
			panic(p)
		}
		scope.complete()
		ds.metrics.ObserveTx(outcome, time.Since(startedAt))
	}()

	if result, err = fn(withScope(ctx, scope)); err != nil {
		ds.rollback(scope, err)
		return result, err
	}
	if err = tx.Commit(); err != nil {
		outcome = TxOutcomeCommitError
		return result, fmt.Errorf("commit tx: %w", err)
	}
	outcome = TxOutcomeCommit
	return result, nil
}

// rollback rolls back the scope. The failure is logged, never returned: the caller keeps the cause error.
func (ds *DataSource) rollback(scope *txScope, cause error) {
	rbErr := scope.tx.Rollback()
	if rbErr == nil || errors.Is(rbErr, sql.ErrTxDone) {
		// ErrTxDone: the driver already rolled back after context cancellation.
		return
	}
	ds.logger.Error("failed to rollback transaction",
		log.String("tx_id", scope.id), log.Error(rbErr), log.String("cause", cause.Error()))
}
