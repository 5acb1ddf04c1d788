package postgres

import "embed"

// Migrations holds the goose SQL migrations for the service schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"

// MigrationTableName is the goose version table.
const MigrationTableName = "schema_migrations"
