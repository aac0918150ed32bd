/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

// Package migrate applies versioned SQL scripts to a database exactly once.
//
// A script is a file in the migrations directory whose name contains a version:
// the first run of digits in the name ("1_create_users.sql", "2_add_index.sql", ...).
// Versions must go one after another without gaps.
// Every script is registered in the ledger table (version, filename, checksum, created_at, success)
// and is applied in its own transaction together with the update of its ledger record.
// Once registered, a script must never change and must never disappear from the directory.
//
// Statements are executed through the transaction coordinator of the dbtx package,
// so the data source must be created with dbtx.NewDataSource or dbtx.NewDataSourceFromConfig.
//
// Basic usage:
//
//	//go:embed migrations/*.sql
//	var migrationsFS embed.FS
//
//	func applyMigrations(ctx context.Context, ds *dbtx.DataSource) error {
//	    migrator, err := migrate.NewMigrator(ctx, ds, "migrations", migrate.WithFS(migrationsFS))
//	    if err != nil {
//	        return err
//	    }
//	    applied, err := migrator.Migrate(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    log.Printf("%d migration(s) applied", applied)
//	    return nil
//	}
//
// When several instances of a service start at the same time, use WithLock
// to make them work with the ledger one by one (Postgres and MySQL only).
package migrate
