/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/gocraft/dbr/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-dbtx"
	"github.com/acronis/go-dbtx/dbrutil"
	_ "github.com/acronis/go-dbtx/mysql"
)

func main() {
	logger, loggerClose := log.NewLogger(&log.Config{
		Output: log.OutputStderr,
		Level:  log.LevelInfo,
	})
	defer loggerClose()

	// Create Prometheus collectors for transactions and SQL queries.
	promMetrics := dbtx.NewPrometheusMetrics()
	promMetrics.MustRegister()
	defer promMetrics.Unregister()
	queryDurations := dbrutil.NewQueryDurationsHistogram("")
	prometheus.MustRegister(queryDurations)
	defer prometheus.Unregister(queryDurations)

	// Open the database connection with instrumentation.
	// Instrumentation includes collecting metrics about SQL queries and logging slow queries.
	eventReceiver := dbrutil.NewCompositeReceiver([]dbr.EventReceiver{
		dbrutil.NewQueryMetricsEventReceiver(queryDurations, queryAnnotationPrefix),
		dbrutil.NewSlowQueryLogEventReceiver(logger, 100*time.Millisecond, queryAnnotationPrefix),
	})
	conn, err := openDB(eventReceiver)
	if err != nil {
		stdlog.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	ds := dbtx.NewDataSource(conn.DB, dbtx.DialectMySQL, dbtx.WithLogger(logger), dbtx.WithMetrics(promMetrics))
	ctx := dbtx.WithDataSource(context.Background(), ds)

	// Execute function in a transaction.
	// The transaction will be automatically committed if the function returns nil, otherwise it
	// will be rolled back.
	if dbErr := dbrutil.Transaction(ctx, conn, func(ctx context.Context, tx dbr.SessionRunner) error {
		var result int
		return tx.Select("SLEEP(1)").
			// Annotate the query for Prometheus metrics and slow query log.
			Comment(annotateQuery("long_operation")).
			LoadOneContext(ctx, &result)
	}); dbErr != nil {
		stdlog.Fatal(dbErr)
	}

	// The following log message will be printed:
	// {"level":"warn","time":"2025-02-14T16:29:55.429257+02:00","msg":"slow SQL query",
	// "pid":14030,"annotation":"query:long_operation","event":"dbr.select","duration_ms":1007}

	// Prometheus metrics will be collected:
	// db_query_duration_seconds_bucket{query="query:long_operation",le="2.5"} 1
	// db_query_duration_seconds_sum{query="query:long_operation"} 1.004573875
	// db_query_duration_seconds_count{query="query:long_operation"} 1
	// db_tx_duration_seconds_count{outcome="commit"} 1
}

const queryAnnotationPrefix = "query:"

func annotateQuery(queryName string) string {
	return queryAnnotationPrefix + queryName
}

func openDB(eventReceiver dbr.EventReceiver) (*dbr.Connection, error) {
	cfg := &dbtx.Config{
		Dialect: dbtx.DialectMySQL,
		MySQL: dbtx.MySQLConfig{
			Host:     os.Getenv("MYSQL_HOST"),
			Port:     3306,
			User:     os.Getenv("MYSQL_USER"),
			Password: os.Getenv("MYSQL_PASSWORD"),
			Database: os.Getenv("MYSQL_DATABASE"),
		},
	}

	// Open database with instrumentation based on the provided event receiver
	// (see github.com/gocraft/dbr doc for details).
	// Opening includes configuring the max open/idle connections and their lifetime and
	// pinging the database.
	conn, err := dbrutil.Open(cfg, true, eventReceiver)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return conn, nil
}
