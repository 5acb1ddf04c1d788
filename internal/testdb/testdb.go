//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
	"github.com/vietguard/vietguard-api/internal/platform/postgres"
)

// TestTimeout bounds individual setup operations.
const TestTimeout = 10 * time.Second

// databaseURLVars are checked in order by GetTestDatabaseURL.
var databaseURLVars = []string{"VIETGUARD_TEST_DB_URL", "DATABASE_URL", "VIETGUARD_DATABASE_URL"}

var (
	migrateOnce sync.Once
	migrateErr  error
)

// GetTestDatabaseURL returns the first configured database URL, or "".
func GetTestDatabaseURL() string {
	for _, name := range databaseURLVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// ApplyMigrations runs the embedded migrations up to the latest version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(postgres.Migrations)
	goose.SetLogger(logger.GooseLogger{Logger: slog.Default()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// GetTestDBWithT opens a connection to the test database, applies the
// migrations and registers cleanup. The test is skipped when no database
// is configured.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("no test database configured - skipping integration test")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "test database is unreachable")

	migrateOnce.Do(func() {
		migrateErr = ApplyMigrations(ctx, db)
	})
	require.NoError(t, migrateErr)
	return db
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}
