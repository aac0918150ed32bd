/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package dbtx

import (
	"database/sql"
	"time"
)

// Dialect defines possible values for planned supported SQL dialects.
type Dialect string

// SQL dialects.
const (
	DialectSQLite   Dialect = "sqlite3"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectPgx      Dialect = "pgx"
	DialectMSSQL    Dialect = "mssql"
)

// IsPostgres reports whether the dialect talks to a PostgreSQL server (lib/pq or pgx driver).
func (d Dialect) IsPostgres() bool {
	return d == DialectPostgres || d == DialectPgx
}

// PostgresSSLMode defines possible values for Postgres sslmode connection parameter.
type PostgresSSLMode string

// Postgres SSL modes.
const (
	PostgresSSLModeDisable    PostgresSSLMode = "disable"
	PostgresSSLModeRequire    PostgresSSLMode = "require"
	PostgresSSLModeVerifyCA   PostgresSSLMode = "verify-ca"
	PostgresSSLModeVerifyFull PostgresSSLMode = "verify-full"
)

// Parameters used for Patroni-aware connections (pgx driver only).
const (
	PgTargetSessionAttrs = "target_session_attrs"
	PgReadWriteParam     = "read-write"
)

// Default values of connection parameters.
const (
	DefaultMaxIdleConns        = 2
	DefaultMaxOpenConns        = 8
	DefaultConnMaxLifetime     = 10 * time.Minute
	DefaultConnMaxIdleTime     = 5 * time.Minute
	DefaultConnCheckoutTimeout = 30 * time.Second
)

// Default values of transaction isolation levels and SSL mode.
const (
	MySQLDefaultTxLevel    = sql.LevelReadCommitted
	PostgresDefaultTxLevel = sql.LevelReadCommitted
	PostgresDefaultSSLMode = PostgresSSLModeVerifyCA
	MSSQLDefaultTxLevel    = sql.LevelReadCommitted
)

// Default values of the migrations configuration.
const (
	DefaultMigrationsDir       = "migrations"
	DefaultMigrationsExtension = ".sql"
	DefaultMigrationsTableName = "migrations"
)
