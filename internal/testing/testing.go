/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

// Package testing runs disposable database containers for integration tests.
package testing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mariadb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/acronis/go-dbtx"
)

// Images used for the containers.
const (
	PostgresImage = "postgres:16-alpine"
	MariaDBImage  = "mariadb:11.4"
)

const (
	testDatabase = "dbtx_test"
	testUser     = "dbtx"
	testPassword = "dbtx_password" //nolint:gosec // test credentials
)

// StopFunc terminates the container started by RunTestDB.
type StopFunc func(ctx context.Context) error

// RunTestDB starts a container for the dialect and returns the driver name and DSN for it.
// Postgres and pgx dialects use PostgreSQL, mysql uses MariaDB.
func RunTestDB(ctx context.Context, dialect dbtx.Dialect) (driverName, dsn string, stop StopFunc, err error) {
	var container testcontainers.Container
	switch dialect {
	case dbtx.DialectPostgres, dbtx.DialectPgx:
		pgContainer, runErr := postgres.Run(ctx, PostgresImage,
			postgres.WithDatabase(testDatabase),
			postgres.WithUsername(testUser),
			postgres.WithPassword(testPassword),
			postgres.BasicWaitStrategies(),
		)
		if pgContainer != nil {
			container = pgContainer
		}
		if runErr != nil {
			return "", "", nil, terminateOnError(ctx, container, fmt.Errorf("run postgres container: %w", runErr))
		}
		if dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable"); err != nil {
			return "", "", nil, terminateOnError(ctx, container, fmt.Errorf("get postgres connection string: %w", err))
		}

	case dbtx.DialectMySQL:
		mariaContainer, runErr := mariadb.Run(ctx, MariaDBImage,
			mariadb.WithDatabase(testDatabase),
			mariadb.WithUsername(testUser),
			mariadb.WithPassword(testPassword),
		)
		if mariaContainer != nil {
			container = mariaContainer
		}
		if runErr != nil {
			return "", "", nil, terminateOnError(ctx, container, fmt.Errorf("run mariadb container: %w", runErr))
		}
		if dsn, err = mariaContainer.ConnectionString(ctx, "multiStatements=true", "parseTime=true"); err != nil {
			return "", "", nil, terminateOnError(ctx, container, fmt.Errorf("get mariadb connection string: %w", err))
		}

	default:
		return "", "", nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	cfg := dbtx.Config{Dialect: dialect}
	driverName, _ = cfg.DriverNameAndDSN()
	return driverName, dsn, func(ctx context.Context) error { return container.Terminate(ctx) }, nil
}

// MustRunAndOpenTestDB starts a container for the dialect and opens a pool to it. It panics on failure.
// The returned function closes the pool and terminates the container.
func MustRunAndOpenTestDB(ctx context.Context, dialect dbtx.Dialect) (*sql.DB, StopFunc) {
	driverName, dsn, stop, err := RunTestDB(ctx, dialect)
	if err != nil {
		panic(err)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		_ = stop(ctx)
		panic(fmt.Errorf("open test database: %w", err))
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = stop(ctx)
		panic(fmt.Errorf("ping test database: %w", err))
	}
	return db, func(ctx context.Context) error {
		closeErr := db.Close()
		if stopErr := stop(ctx); stopErr != nil {
			return stopErr
		}
		return closeErr
	}
}

func terminateOnError(ctx context.Context, container testcontainers.Container, err error) error {
	if container != nil {
		_ = container.Terminate(ctx)
	}
	return err
}
