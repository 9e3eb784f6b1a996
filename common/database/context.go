// Package database holds helpers shared by the Postgres-backed repositories.
package database

import (
	"context"
	"fmt"
	"time"
)

// Timeouts applied to repository calls.
const (
	// DefaultQueryTimeout bounds read queries.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a single write transaction.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultMigrateTimeout bounds schema migrations at startup.
	DefaultMigrateTimeout = 60 * time.Second
)

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext creates a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// PostgresURL builds a postgres:// connection string.
func PostgresURL(user, password, host string, port int, database, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, host, port, database, sslMode)
}
