/*
Copyright © 2025-2026 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"database/sql"
	"embed"
	"flag"
	"fmt"
	stdlog "log"
	"os"

	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-dbtx"
	"github.com/acronis/go-dbtx/migrate"
	_ "github.com/acronis/go-dbtx/mysql"
	_ "github.com/acronis/go-dbtx/pgx"
	_ "github.com/acronis/go-dbtx/postgres"
)

//go:embed mysql/*.sql
//go:embed postgres/*.sql
var migrationFS embed.FS

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
)

func main() {
	if err := runMigrations(); err != nil {
		stdlog.Fatal(err)
	}
}

func runMigrations() error {
	var driverName string
	flag.StringVar(&driverName, "driver", "", "driver name, supported values: mysql, postgres, pgx")
	var lockName string
	flag.StringVar(&lockName, "lock", "", "advisory lock name for running several instances at once")
	flag.Parse()

	dialect, migrationDirName, err := parseDialectFromDriver(driverName)
	if err != nil {
		return fmt.Errorf("parse dialect: %w", err)
	}

	dbConn, err := sql.Open(driverName, os.Getenv("DB_DSN"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	logger, loggerClose := log.NewLogger(&log.Config{Output: log.OutputStderr, Level: log.LevelInfo})
	defer loggerClose()

	ds := dbtx.NewDataSource(dbConn, dialect, dbtx.WithLogger(logger))
	defer func() { _ = ds.Close() }()

	opts := []migrate.MigratorOption{migrate.WithFS(migrationFS), migrate.WithRequireScripts(true)}
	if lockName != "" {
		opts = append(opts, migrate.WithLock(lockName))
	}
	ctx := context.Background()
	migrator, err := migrate.NewMigrator(ctx, ds, migrationDirName, opts...)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrations are up to date", log.Int("applied", applied))
	return nil
}

func parseDialectFromDriver(driverName string) (dialect dbtx.Dialect, migrationDirName string, err error) {
	switch driverName {
	case driverMySQL:
		return dbtx.DialectMySQL, driverMySQL, nil
	case driverPostgres:
		return dbtx.DialectPostgres, driverPostgres, nil
	case "pgx":
		return dbtx.DialectPgx, driverPostgres, nil
	default:
		return "", "", fmt.Errorf("unknown driver name: %s", driverName)
	}
}
