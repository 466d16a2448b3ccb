// Package store provides configuration options for storage backends.
package store

import "strings"

// Opts holds configuration for SQL-backed stores.
type Opts struct {
	// DSN is the backend connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Connection URLs
// and key=value connection strings are PostgreSQL; plain file paths are SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
