/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package distrlock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-dbtx"
)

func newMockDataSource(t *testing.T, dialect dbtx.Dialect) (context.Context, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})
	return dbtx.WithDataSource(context.Background(), dbtx.NewDataSource(db, dialect)), mock
}

func expectLockQuery(mock sqlmock.Sqlmock, query string, arg interface{}, result bool) {
	mock.ExpectBegin()
	mock.ExpectQuery(query).WithArgs(arg).WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(result))
	mock.ExpectCommit()
}

func TestLockID(t *testing.T) {
	require.Equal(t, LockID("migrations"), LockID("migrations"))
	require.NotEqual(t, LockID("migrations"), LockID("migrations2"))
	require.NotZero(t, LockID(""))
}

func TestWithLock(t *testing.T) {
	const lockName = "job"
	lockID := LockID(lockName)

	t.Run("postgres, acquired and released", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		expectLockQuery(mock, postgresTryLockQuery, lockID, true)
		expectLockQuery(mock, postgresUnlockQuery, lockID, true)

		calls := 0
		err := WithLock(ctx, lockName, func(ctx context.Context) error {
			calls++
			_, connErr := dbtx.ConnFrom(ctx)
			return connErr
		})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("mysql, acquired and released", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectMySQL)
		mySQLName := fmt.Sprintf("dbtx_lock_%x", uint64(lockID))
		expectLockQuery(mock, mySQLTryLockQuery, mySQLName, true)
		expectLockQuery(mock, mySQLUnlockQuery, mySQLName, true)

		require.NoError(t, WithLock(ctx, lockName, func(ctx context.Context) error { return nil }))
	})

	t.Run("held by someone else, single attempt", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPgx)
		expectLockQuery(mock, postgresTryLockQuery, lockID, false)

		called := false
		err := WithLock(ctx, lockName, func(ctx context.Context) error {
			called = true
			return nil
		}, WithAcquireTimeout(0))
		require.ErrorIs(t, err, ErrLockNotAcquired)
		require.False(t, called)
	})

	t.Run("acquired after polling", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		expectLockQuery(mock, postgresTryLockQuery, lockID, false)
		expectLockQuery(mock, postgresTryLockQuery, lockID, false)
		expectLockQuery(mock, postgresTryLockQuery, lockID, true)
		expectLockQuery(mock, postgresUnlockQuery, lockID, true)

		calls := 0
		err := WithLock(ctx, lockName, func(ctx context.Context) error {
			calls++
			return nil
		}, WithAcquireTimeout(10*time.Second), WithPollIntervals(time.Millisecond, 5*time.Millisecond))
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("context canceled while waiting", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		ctx, cancel := context.WithCancel(ctx)
		expectLockQuery(mock, postgresTryLockQuery, lockID, false)

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		err := WithLock(ctx, lockName, func(ctx context.Context) error { return nil },
			WithAcquireTimeout(time.Minute), WithPollIntervals(time.Second, time.Second))
		require.ErrorIs(t, err, ErrLockNotAcquired)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("action error, lock released", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		expectLockQuery(mock, postgresTryLockQuery, lockID, true)
		expectLockQuery(mock, postgresUnlockQuery, lockID, true)

		actionErr := errors.New("action failed")
		err := WithLock(ctx, lockName, func(ctx context.Context) error { return actionErr })
		require.Same(t, actionErr, err)
	})

	t.Run("panic in action, lock released", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		expectLockQuery(mock, postgresTryLockQuery, lockID, true)
		expectLockQuery(mock, postgresUnlockQuery, lockID, true)

		require.PanicsWithValue(t, "boom", func() {
			_ = WithLock(ctx, lockName, func(ctx context.Context) error { panic("boom") })
		})
	})

	t.Run("caller context canceled during action, lock released", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		expectLockQuery(mock, postgresTryLockQuery, lockID, true)
		expectLockQuery(mock, postgresUnlockQuery, lockID, true)

		err := WithLock(ctx, lockName, func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("query error", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		queryErr := errors.New("connection reset")
		mock.ExpectBegin()
		mock.ExpectQuery(postgresTryLockQuery).WithArgs(lockID).WillReturnError(queryErr)
		mock.ExpectRollback()

		err := WithLock(ctx, lockName, func(ctx context.Context) error { return nil })
		require.ErrorIs(t, err, queryErr)
		require.NotErrorIs(t, err, ErrLockNotAcquired)
	})

	t.Run("unsupported dialect", func(t *testing.T) {
		ctx, _ := newMockDataSource(t, dbtx.DialectSQLite)
		err := WithLock(ctx, lockName, func(ctx context.Context) error { return nil })
		require.EqualError(t, err, `unsupported sql dialect "sqlite3"`)
	})

	t.Run("no data source", func(t *testing.T) {
		err := WithLock(context.Background(), lockName, func(ctx context.Context) error { return nil })
		require.ErrorIs(t, err, dbtx.ErrDataSourceNotAvailable)
	})
}

func TestWithLock_FailedReleaseDiscardsConnection(t *testing.T) {
	const lockName = "job"
	lockID := LockID(lockName)

	tests := []struct {
		name         string
		expectUnlock func(mock sqlmock.Sqlmock)
	}{
		{
			name: "unlock query error",
			expectUnlock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(postgresUnlockQuery).WithArgs(lockID).WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
		},
		{
			name: "lock not held on release",
			expectUnlock: func(mock sqlmock.Sqlmock) {
				expectLockQuery(mock, postgresUnlockQuery, lockID, false)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
			require.NoError(t, err)
			ctx := dbtx.WithDataSource(context.Background(), dbtx.NewDataSource(db, dbtx.DialectPostgres))

			expectLockQuery(mock, postgresTryLockQuery, lockID, true)
			tt.expectUnlock(mock)
			// The session holding the lock is closed instead of going back to the pool.
			mock.ExpectClose()

			require.NoError(t, WithLock(ctx, lockName, func(ctx context.Context) error { return nil }))

			stats := db.Stats()
			require.Equal(t, 0, stats.Idle)
			require.Equal(t, 0, stats.OpenConnections)
			require.NoError(t, db.Close())
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTryLockAndUnlock(t *testing.T) {
	const lockName = "job"
	lockID := LockID(lockName)

	t.Run("connection is required", func(t *testing.T) {
		ctx, _ := newMockDataSource(t, dbtx.DialectPostgres)
		_, err := TryLock(ctx, lockName)
		require.ErrorIs(t, err, dbtx.ErrConnectionNotAvailable)
		_, err = Unlock(ctx, lockName)
		require.ErrorIs(t, err, dbtx.ErrConnectionNotAvailable)
	})

	t.Run("unlock without lock", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		expectLockQuery(mock, postgresUnlockQuery, lockID, false)

		require.NoError(t, dbtx.WithConnection(ctx, func(ctx context.Context) error {
			released, err := Unlock(ctx, lockName)
			require.NoError(t, err)
			require.False(t, released)
			return nil
		}))
	})

	t.Run("blocking lock", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		expectLockQuery(mock, postgresLockQuery, lockID, true)
		expectLockQuery(mock, postgresUnlockQuery, lockID, true)

		require.NoError(t, dbtx.WithConnection(ctx, func(ctx context.Context) error {
			if err := Lock(ctx, lockName); err != nil {
				return err
			}
			released, err := Unlock(ctx, lockName)
			require.True(t, released)
			return err
		}))
	})

	t.Run("joins the ambient transaction", func(t *testing.T) {
		ctx, mock := newMockDataSource(t, dbtx.DialectPostgres)
		mock.ExpectBegin()
		mock.ExpectQuery(postgresTryLockQuery).WithArgs(lockID).
			WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(true))
		mock.ExpectQuery(postgresUnlockQuery).WithArgs(lockID).
			WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(true))
		mock.ExpectCommit()

		require.NoError(t, dbtx.Transaction(ctx, func(ctx context.Context) error {
			acquired, err := TryLock(ctx, lockName)
			require.NoError(t, err)
			require.True(t, acquired)
			released, err := Unlock(ctx, lockName)
			require.NoError(t, err)
			require.True(t, released)
			return nil
		}))
	})
}

func TestDoExclusively(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	lockID := LockID("report")
	expectLockQuery(mock, postgresTryLockQuery, lockID, true)
	expectLockQuery(mock, postgresUnlockQuery, lockID, true)

	done := false
	require.NoError(t, DoExclusively(context.Background(), db, dbtx.DialectPostgres, "report",
		func(ctx context.Context) error {
			done = true
			return nil
		}))
	require.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}
