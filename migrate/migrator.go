/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-dbtx"
	"github.com/acronis/go-dbtx/distrlock"
)

// DefaultExtension is the default extension of migration scripts.
const DefaultExtension = dbtx.DefaultMigrationsExtension

// Migrator applies versioned SQL scripts from a directory exactly once and keeps track of them in the ledger table.
type Migrator struct {
	ds             *dbtx.DataSource
	ledger         *ledger
	fsys           fs.FS
	location       string
	dir            string
	extension      string
	tableName      string
	requireScripts bool
	lockName       string
	lockOpts       []distrlock.LockOption
	logger         log.FieldLogger
	metrics        dbtx.MigrationMetricsCollector
}

// MigratorOption is a functional option for NewMigrator.
type MigratorOption func(*Migrator)

// WithTableName sets a custom ledger table name.
func WithTableName(name string) MigratorOption {
	return func(m *Migrator) {
		m.tableName = name
	}
}

// WithExtension sets the extension of script files, ".sql" by default.
// The leading dot may be omitted.
func WithExtension(ext string) MigratorOption {
	return func(m *Migrator) {
		m.extension = normalizeExtension(ext)
	}
}

// WithFS makes the migrator read scripts from fsys (e.g. embed.FS) instead of the OS filesystem.
// The directory passed to NewMigrator is then a path inside fsys.
func WithFS(fsys fs.FS) MigratorOption {
	return func(m *Migrator) {
		m.fsys = fsys
	}
}

// WithRequireScripts makes Migrate fail with ErrorCodeNoFiles when the directory has no scripts.
// By default an empty directory is a valid state with nothing to apply.
func WithRequireScripts(require bool) MigratorOption {
	return func(m *Migrator) {
		m.requireScripts = require
	}
}

// WithLogger sets the logger. By default the logger of the data source is used.
func WithLogger(logger log.FieldLogger) MigratorOption {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// WithLock makes NewMigrator and Migrate run under the named advisory lock,
// so only one of several concurrently started instances works with the ledger at a time.
// Only Postgres and MySQL support advisory locks.
func WithLock(name string, opts ...distrlock.LockOption) MigratorOption {
	return func(m *Migrator) {
		m.lockName = name
		m.lockOpts = opts
	}
}

// WithMetrics sets the collector that counts applied and failed scripts.
func WithMetrics(collector dbtx.MigrationMetricsCollector) MigratorOption {
	return func(m *Migrator) {
		m.metrics = collector
	}
}

// NewMigrator checks that dir is a directory and creates the ledger table if it doesn't exist yet.
// Unless WithFS is used, dir is a path in the OS filesystem.
// ctx must not carry an active transaction (ErrorCodeInTransaction).
func NewMigrator(ctx context.Context, ds *dbtx.DataSource, dir string, options ...MigratorOption) (*Migrator, error) {
	if ds == nil {
		return nil, fmt.Errorf("data source cannot be nil")
	}
	if dbtx.InTransaction(ctx) {
		return nil, newError(ErrorCodeInTransaction, "", nil)
	}
	m := &Migrator{
		ds:        ds,
		location:  dir,
		dir:       dir,
		extension: DefaultExtension,
		tableName: DefaultTableName,
	}
	for _, opt := range options {
		opt(m)
	}
	if dir == "" {
		return nil, newError(ErrorCodeNoDir, dir, nil)
	}
	if m.fsys == nil {
		m.fsys = os.DirFS(dir)
		m.dir = "."
	}
	if m.logger == nil {
		m.logger = ds.Logger()
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}

	if info, err := fs.Stat(m.fsys, m.dir); err != nil || !info.IsDir() {
		return nil, newError(ErrorCodeNoDir, dir, nil)
	}

	var err error
	if m.ledger, err = newLedger(ds.Dialect(), m.tableName); err != nil {
		return nil, err
	}
	if err = m.exclusively(ctx, m.ledger.ensureTable); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}
	return m, nil
}

// NewMigratorFromConfig creates a Migrator with the directory, extension, table name, lock name
// and empty directory policy taken from cfg. Options passed explicitly override them.
func NewMigratorFromConfig(
	ctx context.Context, ds *dbtx.DataSource, cfg *dbtx.MigrationsConfig, options ...MigratorOption,
) (*Migrator, error) {
	defaults := []MigratorOption{WithRequireScripts(cfg.RequireScripts)}
	if cfg.Extension != "" {
		defaults = append(defaults, WithExtension(cfg.Extension))
	}
	if cfg.TableName != "" {
		defaults = append(defaults, WithTableName(cfg.TableName))
	}
	if cfg.LockName != "" {
		defaults = append(defaults, WithLock(cfg.LockName))
	}
	return NewMigrator(ctx, ds, cfg.Dir, append(defaults, options...)...)
}

// Migrate applies the scripts that are not applied yet and returns how many of them succeeded.
//
// Before anything is executed, the scripts are checked against the ledger:
// versions must go one after another without gaps (ErrorCodeVersionSeq),
// already registered scripts must keep their checksum (ErrorCodeChecksum)
// and every registered version must still have its script (ErrorCodeMissingScript).
// Any of these errors aborts the call.
//
// New scripts are registered as not applied, then every not applied script runs in its own transaction
// together with the update of its ledger record. A failing script is logged and left not applied
// (it is tried again by the next call), the remaining scripts are still executed.
// A script already applied by a concurrent call is skipped.
// Scripts can't be isolated from each other inside an outer transaction,
// so a ctx with an active transaction is rejected with ErrorCodeInTransaction.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if dbtx.InTransaction(ctx) {
		return 0, newError(ErrorCodeInTransaction, "", nil)
	}
	var applied int
	err := m.exclusively(ctx, func(ctx context.Context) error {
		var migrateErr error
		applied, migrateErr = m.migrate(ctx)
		return migrateErr
	})
	return applied, err
}

// Status returns the ledger records ordered by version.
func (m *Migrator) Status(ctx context.Context) ([]Record, error) {
	return m.ledger.records(dbtx.WithDataSource(ctx, m.ds))
}

// Scripts returns the scripts currently found in the directory, ordered by version.
func (m *Migrator) Scripts() ([]Script, error) {
	return LoadScripts(m.fsys, m.dir, m.extension)
}

func (m *Migrator) exclusively(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = dbtx.WithDataSource(ctx, m.ds)
	if m.lockName == "" {
		return fn(ctx)
	}
	opts := append([]distrlock.LockOption{distrlock.WithLogger(m.logger)}, m.lockOpts...)
	return distrlock.WithLock(ctx, m.lockName, fn, opts...)
}

func (m *Migrator) migrate(ctx context.Context) (int, error) {
	scripts, err := m.Scripts()
	if err != nil {
		return 0, err
	}
	if len(scripts) == 0 && m.requireScripts {
		return 0, newError(ErrorCodeNoFiles, m.location, nil)
	}

	records, err := m.ledger.records(ctx)
	if err != nil {
		return 0, err
	}
	recordsByVersion := make(map[int]Record, len(records))
	for _, rec := range records {
		recordsByVersion[rec.Version] = rec
	}

	if err = validate(scripts, records, recordsByVersion); err != nil {
		return 0, err
	}

	var newScripts, pending []Script
	for _, script := range scripts {
		rec, registered := recordsByVersion[script.Version]
		if !registered {
			newScripts = append(newScripts, script)
		}
		if !registered || !rec.Success {
			pending = append(pending, script)
		}
	}
	if len(pending) == 0 {
		m.logger.Debug("no pending migrations", log.Int("scripts", len(scripts)))
		return 0, nil
	}

	if err = m.ledger.register(ctx, newScripts); err != nil {
		return 0, fmt.Errorf("register migrations: %w", err)
	}

	m.logger.Info(fmt.Sprintf("applying %d migration(s)", len(pending)))
	applied := 0
	for _, script := range pending {
		applyErr := m.apply(ctx, script)
		if errors.Is(applyErr, errAlreadyApplied) {
			m.logger.Debug("migration already applied concurrently",
				log.String("filename", script.Filename), log.Int("version", script.Version))
			continue
		}
		if applyErr != nil {
			m.metrics.IncMigrations(dbtx.MigrationStatusFailed)
			m.logger.Error("migration failed",
				log.String("filename", script.Filename), log.Int("version", script.Version), log.Error(applyErr))
			continue
		}
		applied++
		m.metrics.IncMigrations(dbtx.MigrationStatusApplied)
		m.logger.Info("migration applied", log.String("filename", script.Filename), log.Int("version", script.Version))
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, script Script) error {
	// The record is claimed before the script, a concurrent call waits on it and then skips the script.
	// MySQL commits DDL implicitly together with an early claim, so there the record is updated last.
	claimFirst := m.ds.Dialect() != dbtx.DialectMySQL
	return dbtx.Transaction(ctx, func(ctx context.Context) error {
		if claimFirst {
			if err := m.ledger.markSucceeded(ctx, script.Version); err != nil {
				return err
			}
		}
		if strings.TrimSpace(script.SQL) != "" {
			executor, err := dbtx.Executor(ctx)
			if err != nil {
				return err
			}
			if _, err = executor.ExecContext(ctx, script.SQL); err != nil {
				return fmt.Errorf("execute script: %w", err)
			}
		}
		if !claimFirst {
			return m.ledger.markSucceeded(ctx, script.Version)
		}
		return nil
	})
}

// validate checks contiguity, checksum stability and completeness, in this order.
func validate(scripts []Script, records []Record, recordsByVersion map[int]Record) error {
	for i := 1; i < len(scripts); i++ {
		if scripts[i].Version != scripts[i-1].Version+1 {
			return newError(ErrorCodeVersionSeq, versionOrder(scripts), nil)
		}
	}

	for _, script := range scripts {
		if rec, ok := recordsByVersion[script.Version]; ok && rec.Checksum != script.Checksum {
			return newError(ErrorCodeChecksum, script.Filename, nil)
		}
	}

	scriptVersions := make(map[int]struct{}, len(scripts))
	for _, script := range scripts {
		scriptVersions[script.Version] = struct{}{}
	}
	for _, rec := range records {
		if _, ok := scriptVersions[rec.Version]; !ok {
			return newError(ErrorCodeMissingScript, fmt.Sprintf("version %d (%s)", rec.Version, rec.Filename), nil)
		}
	}
	return nil
}

func versionOrder(scripts []Script) string {
	versions := make([]string, 0, len(scripts))
	for _, script := range scripts {
		versions = append(versions, strconv.Itoa(script.Version))
	}
	return "order: " + strings.Join(versions, ", ")
}

type noopMetrics struct{}

func (noopMetrics) IncMigrations(dbtx.MigrationStatus) {}
