/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package migrate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"     // register goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"  // register goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"   // register goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlserver" // register goqu dialect

	"github.com/acronis/go-dbtx"
)

// DefaultTableName is the default name of the ledger table.
const DefaultTableName = dbtx.DefaultMigrationsTableName

const (
	colVersion   = "version"
	colFilename  = "filename"
	colChecksum  = "checksum"
	colCreatedAt = "created_at"
	colSuccess   = "success"
)

var errAlreadyApplied = errors.New("migration is already applied")

var tableNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ledger reads and writes the table that tracks scripts.
// All statements go through the executor of the ambient transaction.
type ledger struct {
	dialect   dbtx.Dialect
	tableName string
	builder   goqu.DialectWrapper
}

func newLedger(dialect dbtx.Dialect, tableName string) (*ledger, error) {
	if !tableNameRegexp.MatchString(tableName) {
		return nil, fmt.Errorf("invalid migrations table name %q", tableName)
	}
	var goquDialect string
	switch dialect {
	case dbtx.DialectPostgres, dbtx.DialectPgx:
		goquDialect = "postgres"
	case dbtx.DialectMySQL:
		goquDialect = "mysql"
	case dbtx.DialectSQLite:
		goquDialect = "sqlite3"
	case dbtx.DialectMSSQL:
		goquDialect = "sqlserver"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &ledger{dialect: dialect, tableName: tableName, builder: goqu.Dialect(goquDialect)}, nil
}

// createTableSQL returns the dialect-specific DDL for creating the ledger table.
// The table name is quoted the same way goqu quotes it in the other statements.
func (l *ledger) createTableSQL() string {
	switch l.dialect {
	case dbtx.DialectMySQL:
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
			"version INTEGER NOT NULL UNIQUE, "+
			"filename VARCHAR(255) NOT NULL, "+
			"checksum VARCHAR(32) NOT NULL, "+
			"created_at DATETIME(6) NOT NULL, "+
			"success BOOLEAN NOT NULL DEFAULT 0)", l.tableName)

	case dbtx.DialectPostgres, dbtx.DialectPgx:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			version INTEGER NOT NULL UNIQUE,
			filename TEXT NOT NULL,
			checksum TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			success BOOLEAN NOT NULL DEFAULT false
		)`, l.tableName)

	case dbtx.DialectSQLite:
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
			"version INTEGER NOT NULL UNIQUE, "+
			"filename TEXT NOT NULL, "+
			"checksum TEXT NOT NULL, "+
			"created_at TIMESTAMP NOT NULL, "+
			"success BOOLEAN NOT NULL DEFAULT 0)", l.tableName)

	case dbtx.DialectMSSQL:
		// MSSQL doesn't support CREATE TABLE IF NOT EXISTS, use conditional check
		return fmt.Sprintf(`IF NOT EXISTS (SELECT * FROM sys.tables WHERE name = '%s')
			CREATE TABLE "%s" (
				version INT NOT NULL UNIQUE,
				filename NVARCHAR(255) NOT NULL,
				checksum VARCHAR(32) NOT NULL,
				created_at DATETIME2 NOT NULL,
				success BIT NOT NULL DEFAULT 0
			)`, l.tableName, l.tableName)
	}
	return ""
}

// ensureTable creates the ledger table if it doesn't exist.
func (l *ledger) ensureTable(ctx context.Context) error {
	return dbtx.Transaction(ctx, func(ctx context.Context) error {
		executor, err := dbtx.Executor(ctx)
		if err != nil {
			return err
		}
		if _, err = executor.ExecContext(ctx, l.createTableSQL()); err != nil {
			return fmt.Errorf("create migrations table: %w", err)
		}
		return nil
	})
}

func (l *ledger) selectQuery() (string, []interface{}, error) {
	return l.builder.From(l.tableName).
		Select(colVersion, colFilename, colChecksum, colCreatedAt, colSuccess).
		Order(goqu.C(colVersion).Asc()).
		Prepared(true).ToSQL()
}

func (l *ledger) insertQuery(script Script, createdAt time.Time) (string, []interface{}, error) {
	return l.builder.Insert(l.tableName).Rows(goqu.Record{
		colVersion:   script.Version,
		colFilename:  script.Filename,
		colChecksum:  script.Checksum,
		colCreatedAt: createdAt,
		colSuccess:   false,
	}).Prepared(true).ToSQL()
}

func (l *ledger) markSucceededQuery(version int) (string, []interface{}, error) {
	return l.builder.Update(l.tableName).
		Set(goqu.Record{colSuccess: true}).
		Where(goqu.C(colVersion).Eq(version), goqu.L("? = ?", goqu.C(colSuccess), false)).
		Prepared(true).ToSQL()
}

// records returns all ledger rows ordered by version.
func (l *ledger) records(ctx context.Context) ([]Record, error) {
	query, args, err := l.selectQuery()
	if err != nil {
		return nil, fmt.Errorf("build select migrations query: %w", err)
	}

	return dbtx.TransactionValue(ctx, func(ctx context.Context) ([]Record, error) {
		executor, err := dbtx.Executor(ctx)
		if err != nil {
			return nil, err
		}
		rows, err := executor.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query migrations: %w", err)
		}
		defer rows.Close() // nolint: errcheck

		var records []Record
		for rows.Next() {
			var rec Record
			if err = rows.Scan(&rec.Version, &rec.Filename, &rec.Checksum, &rec.CreatedAt, &rec.Success); err != nil {
				return nil, fmt.Errorf("scan migration row: %w", err)
			}
			records = append(records, rec)
		}
		return records, rows.Err()
	})
}

// register inserts not yet applied records for the scripts, all in one transaction.
func (l *ledger) register(ctx context.Context, scripts []Script) error {
	if len(scripts) == 0 {
		return nil
	}
	createdAt := time.Now().UTC()
	return dbtx.Transaction(ctx, func(ctx context.Context) error {
		executor, err := dbtx.Executor(ctx)
		if err != nil {
			return err
		}
		for _, script := range scripts {
			query, args, buildErr := l.insertQuery(script, createdAt)
			if buildErr != nil {
				return fmt.Errorf("build insert migration query: %w", buildErr)
			}
			if _, err = executor.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert migration record %s: %w", script.Filename, err)
			}
		}
		return nil
	})
}

// markSucceeded sets the success flag of a not applied record. It joins the ambient transaction,
// so the flag is committed together with the script. errAlreadyApplied is returned
// when the record is already applied, e.g. by a concurrent Migrate call.
func (l *ledger) markSucceeded(ctx context.Context, version int) error {
	query, args, err := l.markSucceededQuery(version)
	if err != nil {
		return fmt.Errorf("build update migration query: %w", err)
	}
	return dbtx.Transaction(ctx, func(ctx context.Context) error {
		executor, err := dbtx.Executor(ctx)
		if err != nil {
			return err
		}
		res, err := executor.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update migration record: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update migration record: %w", err)
		}
		if affected == 0 {
			return errAlreadyApplied
		}
		return nil
	})
}
