package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
	"github.com/vietguard/vietguard-api/internal/platform/postgres"
)

// embeddedMigrationsDir is the migrations directory inside postgres.Migrations.
const embeddedMigrationsDir = "migrations"

// ErrMigrationsPending is returned by validation when the database is
// behind the embedded migrations.
var ErrMigrationsPending = errors.New("database has pending migrations")

// configureGoose points goose at the embedded migrations and routes its
// output through log.
func configureGoose(log *slog.Logger) error {
	goose.SetBaseFS(postgres.Migrations)
	goose.SetLogger(logger.GooseLogger{Logger: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// runMigrations executes a goose command against db.
func runMigrations(ctx context.Context, db *sql.DB, command string, log *slog.Logger, args ...string) error {
	migrationLogger := log.With(
		"correlation_id", uuid.NewString(),
		"component", "migrations",
		"command", command,
	)
	if err := configureGoose(migrationLogger); err != nil {
		return err
	}

	start := time.Now()
	migrationLogger.Info("Starting migration operation", "operation", "goose "+command)

	err := goose.RunContext(ctx, command, db, embeddedMigrationsDir, args...)
	migrationLogger.Info("Migration operation completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil)
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}

// validateAppliedMigrations fails when the database version is behind the
// newest embedded migration.
func validateAppliedMigrations(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	log = log.With("component", "migrations", "command", "validate")
	if err := configureGoose(log); err != nil {
		return err
	}

	migrations, err := goose.CollectMigrations(embeddedMigrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("failed to collect migrations: %w", err)
	}
	latest, err := migrations.Last()
	if err != nil {
		return fmt.Errorf("failed to find latest migration: %w", err)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read database version: %w", err)
	}

	log.Info("Migration status", "database_version", current, "latest_version", latest.Version)
	if current < latest.Version {
		return fmt.Errorf("%w: at version %d, latest is %d", ErrMigrationsPending, current, latest.Version)
	}
	return nil
}

// createMigration writes a new, empty SQL migration into dir.
func createMigration(dir, name string, log *slog.Logger) error {
	goose.SetLogger(logger.GooseLogger{Logger: log})
	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}
	return nil
}
