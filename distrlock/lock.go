/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

package distrlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/acronis/go-dbtx"
)

// ErrLockNotAcquired is returned when the lock is held by another session and could not be acquired in time.
var ErrLockNotAcquired = errors.New("distributed lock not acquired")

// Default values for WithLock options.
const (
	DefaultAcquireTimeout      = 30 * time.Second
	DefaultReleaseTimeout      = 5 * time.Second
	DefaultPollInitialInterval = 100 * time.Millisecond
	DefaultPollMaxInterval     = 2 * time.Second
)

// LockID returns the numeric identifier of the advisory lock with the given name.
// The same name always gives the same identifier, in every process.
func LockID(name string) int64 {
	return int64(xxhash.Sum64String(name)) //nolint:gosec // overflow is expected, only the bits matter
}

// TryLock tries to acquire the session-level advisory lock without waiting.
// The lock belongs to the connection carried by ctx (see dbtx.WithConnection),
// so ctx must carry one, otherwise dbtx.ErrConnectionNotAvailable is returned.
func TryLock(ctx context.Context, name string) (bool, error) {
	return queryLock(ctx, name, func(q dbQueries) string { return q.tryLock })
}

// Lock acquires the session-level advisory lock, waiting as long as ctx allows.
func Lock(ctx context.Context, name string) error {
	acquired, err := queryLock(ctx, name, func(q dbQueries) string { return q.lock })
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("acquire lock %q: %w", name, ErrLockNotAcquired)
	}
	return nil
}

// Unlock releases the advisory lock held by the connection carried by ctx.
// It returns false without an error when the session doesn't hold the lock.
func Unlock(ctx context.Context, name string) (bool, error) {
	return queryLock(ctx, name, func(q dbQueries) string { return q.unlock })
}

func queryLock(ctx context.Context, name string, pick func(q dbQueries) string) (bool, error) {
	if _, err := dbtx.ConnFrom(ctx); err != nil {
		return false, err
	}
	ds, err := dbtx.DataSourceFrom(ctx)
	if err != nil {
		return false, err
	}
	q, err := newDBQueries(ds.Dialect())
	if err != nil {
		return false, err
	}
	arg := q.lockArg(LockID(name))
	return dbtx.TransactionValue(ctx, func(ctx context.Context) (bool, error) {
		executor, err := dbtx.Executor(ctx)
		if err != nil {
			return false, err
		}
		var ok sql.NullBool
		if err = executor.QueryRowContext(ctx, pick(q), arg).Scan(&ok); err != nil {
			return false, fmt.Errorf("query advisory lock %q: %w", name, err)
		}
		return ok.Valid && ok.Bool, nil
	})
}

// LockOption is a functional option for WithLock and DoExclusively.
type LockOption func(*lockOptions)

type lockOptions struct {
	acquireTimeout      time.Duration
	releaseTimeout      time.Duration
	pollInitialInterval time.Duration
	pollMaxInterval     time.Duration
	logger              log.FieldLogger
}

// WithAcquireTimeout sets how long WithLock polls for the lock held by someone else.
// Zero means a single attempt.
func WithAcquireTimeout(timeout time.Duration) LockOption {
	return func(o *lockOptions) {
		o.acquireTimeout = timeout
	}
}

// WithReleaseTimeout sets the timeout for releasing the lock.
func WithReleaseTimeout(timeout time.Duration) LockOption {
	return func(o *lockOptions) {
		o.releaseTimeout = timeout
	}
}

// WithPollIntervals sets the bounds of the exponential backoff between acquisition attempts.
func WithPollIntervals(initial, maxInterval time.Duration) LockOption {
	return func(o *lockOptions) {
		o.pollInitialInterval = initial
		o.pollMaxInterval = maxInterval
	}
}

// WithLogger sets the logger for release failures. By default the logger of the data source is used.
func WithLogger(logger log.FieldLogger) LockOption {
	return func(o *lockOptions) {
		o.logger = logger
	}
}

// WithLock runs action while holding the named advisory lock.
//
// A connection is pinned for the whole call (dbtx.WithConnection), so action and the lock share the session.
// The lock is polled with exponential backoff until it is acquired, ctx is done, or the acquire timeout expires;
// in the last two cases the error wraps ErrLockNotAcquired and action is not called.
// Once acquired, action is called exactly once and the lock is released on every exit path,
// including a canceled ctx and a panic in action. If the release fails, the connection is closed
// instead of going back to the pool, which ends the session and its lock.
func WithLock(ctx context.Context, name string, action func(ctx context.Context) error, options ...LockOption) error {
	ds, err := dbtx.DataSourceFrom(ctx)
	if err != nil {
		return err
	}
	if _, err = newDBQueries(ds.Dialect()); err != nil {
		return err
	}
	opts := lockOptions{
		acquireTimeout:      DefaultAcquireTimeout,
		releaseTimeout:      DefaultReleaseTimeout,
		pollInitialInterval: DefaultPollInitialInterval,
		pollMaxInterval:     DefaultPollMaxInterval,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = ds.Logger()
	}

	return dbtx.WithConnection(ctx, func(ctx context.Context) error {
		if err := acquire(ctx, name, &opts); err != nil {
			return err
		}

		//nolint:contextcheck // context.WithoutCancel is used to allow lock release even
		// if the passed ctx is already canceled
		defer func() {
			releaseCtx, releaseCtxCancel := context.WithTimeout(context.WithoutCancel(ctx), opts.releaseTimeout)
			defer releaseCtxCancel()
			released, releaseErr := Unlock(releaseCtx, name)
			switch {
			case releaseErr != nil:
				opts.logger.Error("failed to release distributed lock, discarding connection",
					log.String("lock", name), log.Error(releaseErr))
			case !released:
				opts.logger.Warn("distributed lock was not held on release, discarding connection",
					log.String("lock", name))
			default:
				return
			}
			// The session may still hold the lock, it must not go back to the pool.
			if discardErr := dbtx.DiscardConn(releaseCtx); discardErr != nil {
				opts.logger.Error("failed to discard connection", log.String("lock", name), log.Error(discardErr))
			}
		}()

		return action(ctx)
	})
}

func acquire(ctx context.Context, name string, opts *lockOptions) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if opts.acquireTimeout > 0 {
		ebo := backoff.NewExponentialBackOff()
		ebo.InitialInterval = opts.pollInitialInterval
		ebo.MaxInterval = opts.pollMaxInterval
		ebo.MaxElapsedTime = opts.acquireTimeout
		b = ebo
	}

	err := backoff.Retry(func() error {
		acquired, lockErr := TryLock(ctx, name)
		if lockErr != nil {
			return backoff.Permanent(lockErr)
		}
		if !acquired {
			return ErrLockNotAcquired
		}
		return nil
	}, backoff.WithContext(b, ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrLockNotAcquired):
		return fmt.Errorf("acquire lock %q: %w", name, err)
	case ctx.Err() != nil:
		return fmt.Errorf("acquire lock %q: %w: %w", name, ErrLockNotAcquired, ctx.Err())
	default:
		return fmt.Errorf("acquire lock %q: %w", name, err)
	}
}

// DoExclusively runs fn while holding the named advisory lock.
// It's a ready-to-use helper for code that has a pool but no data source in the context.
// See WithLock for details.
func DoExclusively(
	ctx context.Context,
	db *sql.DB,
	dialect dbtx.Dialect,
	name string,
	fn func(ctx context.Context) error,
	options ...LockOption,
) error {
	ctx = dbtx.WithDataSource(ctx, dbtx.NewDataSource(db, dialect))
	return WithLock(ctx, name, fn, options...)
}

type dbQueries struct {
	tryLock string
	lock    string
	unlock  string
	lockArg func(id int64) interface{}
}

func newDBQueries(dialect dbtx.Dialect) (dbQueries, error) {
	switch dialect {
	case dbtx.DialectPostgres, dbtx.DialectPgx:
		return dbQueries{
			tryLock: postgresTryLockQuery,
			lock:    postgresLockQuery,
			unlock:  postgresUnlockQuery,
			lockArg: func(id int64) interface{} { return id },
		}, nil
	case dbtx.DialectMySQL:
		return dbQueries{
			tryLock: mySQLTryLockQuery,
			lock:    mySQLLockQuery,
			unlock:  mySQLUnlockQuery,
			lockArg: mySQLLockName,
		}, nil
	default:
		return dbQueries{}, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
}

const (
	postgresTryLockQuery = `SELECT pg_try_advisory_lock($1)`
	postgresLockQuery    = `SELECT true FROM (SELECT pg_advisory_lock($1)) AS l`
	postgresUnlockQuery  = `SELECT pg_advisory_unlock($1)`
)

// MySQL locks are named, the name is derived from the same id the Postgres lock uses.
// GET_LOCK and RELEASE_LOCK return NULL on errors, it's treated as not acquired (not released).
const (
	mySQLTryLockQuery = `SELECT COALESCE(GET_LOCK(?, 0), 0) = 1`
	mySQLLockQuery    = `SELECT COALESCE(GET_LOCK(?, -1), 0) = 1`
	mySQLUnlockQuery  = `SELECT COALESCE(RELEASE_LOCK(?), 0) = 1`
)

func mySQLLockName(id int64) interface{} {
	return fmt.Sprintf("dbtx_lock_%x", uint64(id))
}
