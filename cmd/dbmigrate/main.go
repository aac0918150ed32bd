/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

// Command dbmigrate applies the migration scripts configured in a YAML file
// or prints the state of the migrations ledger.
//
// Usage:
//
//	dbmigrate -config config.yml [-status]
//
// Configuration parameters may be overridden with DBMIGRATE_* environment variables
// (e.g. DBMIGRATE_DB_DSN, DBMIGRATE_DB_MIGRATIONS_DIR).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-dbtx"
	"github.com/acronis/go-dbtx/migrate"
	_ "github.com/acronis/go-dbtx/mssql"
	_ "github.com/acronis/go-dbtx/mysql"
	_ "github.com/acronis/go-dbtx/pgx"
	_ "github.com/acronis/go-dbtx/postgres"
	_ "github.com/acronis/go-dbtx/sqlite"
)

const envVarsPrefix = "DBMIGRATE"

var supportedDialects = []dbtx.Dialect{
	dbtx.DialectPostgres, dbtx.DialectPgx, dbtx.DialectMySQL, dbtx.DialectSQLite, dbtx.DialectMSSQL,
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	status := flag.Bool("status", false, "print the migrations ledger instead of applying scripts")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *status, *verbose, os.Stdout); err != nil {
		stdlog.Fatal(err)
	}
}

func run(ctx context.Context, configPath string, status, verbose bool, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logLevel := log.LevelInfo
	if verbose {
		logLevel = log.LevelDebug
	}
	logger, loggerClose := log.NewLogger(&log.Config{Output: log.OutputStderr, Level: logLevel})
	defer loggerClose()

	ds, err := dbtx.NewDataSourceFromConfig(cfg, true, dbtx.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if closeErr := ds.Close(); closeErr != nil {
			logger.Warn("failed to close database", log.Error(closeErr))
		}
	}()

	migrator, err := migrate.NewMigratorFromConfig(ctx, ds, &cfg.Migrations)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if status {
		return printStatus(ctx, migrator, out)
	}

	startedAt := time.Now()
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrations finished",
		log.Int("applied", applied), log.Int64("duration_ms", time.Since(startedAt).Milliseconds()))
	return nil
}

func loadConfig(path string) (*dbtx.Config, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg := dbtx.NewDefaultConfig(supportedDialects)
	if err = config.NewDefaultLoader(envVarsPrefix).LoadFromReader(f, config.DataTypeYAML, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func printStatus(ctx context.Context, migrator *migrate.Migrator, out io.Writer) error {
	records, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("get migrations status: %w", err)
	}
	scripts, err := migrator.Scripts()
	if err != nil {
		return fmt.Errorf("load migration scripts: %w", err)
	}
	registered := make(map[int]struct{}, len(records))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tFILENAME\tSTATUS\tCREATED AT")
	for _, rec := range records {
		registered[rec.Version] = struct{}{}
		state := "applied"
		if !rec.Success {
			state = "failed"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", rec.Version, rec.Filename, state, rec.CreatedAt.Format(time.RFC3339))
	}
	for _, script := range scripts {
		if _, ok := registered[script.Version]; !ok {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", script.Version, script.Filename, "pending", "-")
		}
	}
	return tw.Flush()
}
