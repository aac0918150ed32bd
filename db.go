/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

package dbtx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/log"
)

// Open opens a connection pool to the database described by cfg.
// Pool limits (max open/idle connections, connection lifetime and idle time) are applied from cfg.
// If ping is true, the database is pinged and the pool is closed on failure.
func Open(cfg *Config, ping bool) (*sql.DB, error) {
	driverName, dsn := cfg.DriverNameAndDSN()
	if driverName == "" {
		return nil, fmt.Errorf("unsupported sql dialect %q", cfg.Dialect)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database with driver %q: %w", driverName, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime))
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime))

	if ping {
		if err = db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}
	return db, nil
}

// DataSource is the connection pool together with the settings the transaction coordinator
// needs when it checks out connections from it.
type DataSource struct {
	db              *sql.DB
	dialect         Dialect
	txOpts          *sql.TxOptions
	checkoutTimeout time.Duration
	logger          log.FieldLogger
	metrics         TxMetricsCollector
}

// DataSourceOption is a functional option for NewDataSource.
type DataSourceOption func(*DataSource)

// WithDefaultTxOptions sets the options every top-level transaction is started with,
// unless the Transaction call passes its own.
func WithDefaultTxOptions(opts *sql.TxOptions) DataSourceOption {
	return func(ds *DataSource) {
		ds.txOpts = opts
	}
}

// WithCheckoutTimeout limits how long a top-level transaction waits for a free connection in the pool.
// Zero means waiting as long as the caller's context allows.
func WithCheckoutTimeout(timeout time.Duration) DataSourceOption {
	return func(ds *DataSource) {
		ds.checkoutTimeout = timeout
	}
}

// WithLogger sets the logger used for rollback and release failures.
func WithLogger(logger log.FieldLogger) DataSourceOption {
	return func(ds *DataSource) {
		ds.logger = logger
	}
}

// WithMetrics sets the collector that observes outcome and duration of every top-level transaction.
func WithMetrics(collector TxMetricsCollector) DataSourceOption {
	return func(ds *DataSource) {
		ds.metrics = collector
	}
}

// NewDataSource wraps an already opened pool.
func NewDataSource(db *sql.DB, dialect Dialect, options ...DataSourceOption) *DataSource {
	ds := &DataSource{db: db, dialect: dialect}
	for _, opt := range options {
		opt(ds)
	}
	if ds.logger == nil {
		ds.logger = log.NewDisabledLogger()
	}
	if ds.metrics == nil {
		ds.metrics = disabledMetrics{}
	}
	return ds
}

// NewDataSourceFromConfig opens the pool described by cfg and wraps it.
// Isolation level and checkout timeout are taken from cfg; options passed explicitly override them.
func NewDataSourceFromConfig(cfg *Config, ping bool, options ...DataSourceOption) (*DataSource, error) {
	db, err := Open(cfg, ping)
	if err != nil {
		return nil, err
	}
	defaults := []DataSourceOption{
		WithDefaultTxOptions(&sql.TxOptions{Isolation: cfg.TxIsolationLevel()}),
		WithCheckoutTimeout(time.Duration(cfg.ConnCheckoutTimeout)),
	}
	return NewDataSource(db, cfg.Dialect, append(defaults, options...)...), nil
}

// DB returns the underlying pool.
func (ds *DataSource) DB() *sql.DB {
	return ds.db
}

// Dialect returns the SQL dialect of the database.
func (ds *DataSource) Dialect() Dialect {
	return ds.dialect
}

// Logger returns the logger of the data source.
func (ds *DataSource) Logger() log.FieldLogger {
	return ds.logger
}

// Close closes the pool.
func (ds *DataSource) Close() error {
	return ds.db.Close()
}

// checkout takes a connection for a new top-level scope.
// A connection pinned by WithConnection is reused and is not released by the scope.
func (ds *DataSource) checkout(ctx context.Context) (conn *sql.Conn, release func(), err error) {
	if p := pinnedConnFrom(ctx); p != nil {
		return p.conn, func() {}, nil
	}

	checkoutCtx := ctx
	if ds.checkoutTimeout > 0 {
		var cancel context.CancelFunc
		checkoutCtx, cancel = context.WithTimeout(ctx, ds.checkoutTimeout)
		defer cancel()
	}
	if conn, err = ds.db.Conn(checkoutCtx); err != nil {
		return nil, nil, fmt.Errorf("checkout connection: %w", err)
	}
	return conn, func() {
		// ErrConnDone: the connection was discarded by DiscardConn.
		if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
			ds.logger.Warn("failed to release database connection", log.Error(closeErr))
		}
	}, nil
}
