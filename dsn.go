/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

package dbtx

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// SQLiteDefaultBusyTimeoutMs is the time (in milliseconds) SQLite waits for a locked database
// before failing with SQLITE_BUSY. Several scopes may write concurrently, so it must not be zero.
const SQLiteDefaultBusyTimeoutMs = 5000

// MakeMSSQLDSN makes DSN for opening MSSQL database.
func MakeMSSQLDSN(cfg *MSSQLConfig) string {
	const databaseParam = "database"
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: url.Values{databaseParam: []string{cfg.Database}}.Encode(),
	}
	return withExtraParams(u, cfg.AdditionalParameters, databaseParam)
}

// MakeMySQLDSN makes DSN for opening MySQL database.
func MakeMySQLDSN(cfg *MySQLConfig) string {
	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.DBName = cfg.Database
	c.ParseTime = true
	c.MultiStatements = true // Migration scripts usually contain several statements.
	c.Params = map[string]string{"autocommit": "false"}
	return c.FormatDSN()
}

// MakePostgresDSN makes DSN for opening Postgres database.
func MakePostgresDSN(cfg *PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = PostgresDefaultSSLMode
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     cfg.Database,
		RawQuery: "sslmode=" + url.QueryEscape(string(sslMode)),
	}
	reserved := []string{"sslmode"}
	if cfg.SearchPath != "" {
		u.RawQuery += "&search_path=" + url.QueryEscape(cfg.SearchPath)
		reserved = append(reserved, "search_path")
	}
	return withExtraParams(u, cfg.AdditionalParameters, reserved...)
}

// MakeSQLiteDSN makes DSN for opening SQLite database (github.com/mattn/go-sqlite3 driver).
// Busy timeout is added unless the path already carries its own query parameters.
func MakeSQLiteDSN(cfg *SQLiteConfig) string {
	if cfg.Path == "" || strings.Contains(cfg.Path, "?") {
		return cfg.Path
	}
	return fmt.Sprintf("%s?_busy_timeout=%d", cfg.Path, SQLiteDefaultBusyTimeoutMs)
}

// withExtraParams appends additional parameters to the URL query in a deterministic (sorted) order.
// Parameters listed in reserved are already controlled by the dedicated config fields and are skipped.
func withExtraParams(u url.URL, params map[string]string, reserved ...string) string {
	if len(params) == 0 {
		return u.String()
	}
	parts := make([]string, 0, len(params))
	for k, v := range params {
		if containsString(reserved, k) {
			continue
		}
		parts = append(parts, k+"="+url.QueryEscape(v))
	}
	if len(parts) == 0 {
		return u.String()
	}
	sort.Strings(parts)
	u.RawQuery += "&" + strings.Join(parts, "&")
	return u.String()
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
