/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

// Package dbrutil lets code built on the github.com/gocraft/dbr query builder
// run its statements in the transactions of the dbtx coordinator.
package dbrutil

import (
	"context"
	"fmt"

	"github.com/gocraft/dbr/v2"
	"github.com/gocraft/dbr/v2/dialect"

	"github.com/acronis/go-dbtx"
)

// Open opens the pool described by cfg (see dbtx.Open) and wraps it into *dbr.Connection.
// A nil receiver means no instrumentation.
func Open(cfg *dbtx.Config, ping bool, receiver dbr.EventReceiver) (*dbr.Connection, error) {
	dbrDialect, err := DialectFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := dbtx.Open(cfg, ping)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		receiver = &dbr.NullEventReceiver{}
	}
	return &dbr.Connection{DB: db, Dialect: dbrDialect, EventReceiver: receiver}, nil
}

// DialectFor returns the dbr dialect for the SQL dialect.
func DialectFor(d dbtx.Dialect) (dbr.Dialect, error) {
	switch d {
	case dbtx.DialectMySQL:
		return dialect.MySQL, nil
	case dbtx.DialectPostgres, dbtx.DialectPgx:
		return dialect.PostgreSQL, nil
	case dbtx.DialectSQLite:
		return dialect.SQLite3, nil
	case dbtx.DialectMSSQL:
		return dialect.MSSQL, nil
	}
	return nil, fmt.Errorf("unsupported sql dialect %q", d)
}

// Session returns a dbr session bound to the transaction carried by ctx,
// so statements built with it join that transaction.
// The transaction is owned by dbtx.Transaction: never call Commit or Rollback on the returned session.
func Session(ctx context.Context, conn *dbr.Connection) (dbr.SessionRunner, error) {
	tx, err := dbtx.TxFrom(ctx)
	if err != nil {
		return nil, err
	}
	return &dbr.Tx{EventReceiver: conn.EventReceiver, Dialect: conn.Dialect, Tx: tx}, nil
}

// Transaction runs fn in dbtx.Transaction and passes it a dbr session of that transaction.
// Nested calls join the outer transaction, see dbtx.Transaction.
func Transaction(
	ctx context.Context, conn *dbr.Connection, fn func(ctx context.Context, sess dbr.SessionRunner) error,
	options ...dbtx.TxOption,
) error {
	return dbtx.Transaction(ctx, func(ctx context.Context) error {
		sess, err := Session(ctx, conn)
		if err != nil {
			return err
		}
		return fn(ctx, sess)
	}, options...)
}
