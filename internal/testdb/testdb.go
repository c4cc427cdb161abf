// Package testdb provides helpers for tests that need a real PostgreSQL
// database. Tests using it are skipped when no database is configured.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds the connection check made by Open.
const TestTimeout = 5 * time.Second

// DatabaseURL returns DATABASE_URL, falling back to POSTPILOT_TEST_DATABASE_URL.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return os.Getenv("POSTPILOT_TEST_DATABASE_URL")
}

// IsIntegrationTestEnvironment reports whether a test database is configured.
func IsIntegrationTestEnvironment() bool {
	return DatabaseURL() != ""
}

// Open connects to the test database, skipping the test when none is
// configured. The connection is closed when the test ends.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	url := DatabaseURL()
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping PostgreSQL integration test")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "failed to ping test database")
	return db
}

// WithTx runs fn inside a transaction that is always rolled back, so the
// test leaves no rows behind.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("warning: failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}
