// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// gooseDialect maps our dialect names onto goose's.
func gooseDialect(dialect string) string {
	if dialect == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func setup(dialect string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect(gooseDialect(dialect))
}

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sql.DB, dialect string) error {
	if err := setup(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sql.DB, dialect string) error {
	if err := setup(dialect); err != nil {
		return err
	}
	return goose.Down(db, "migrations")
}

// MigrateReset rolls back all migrations.
func MigrateReset(db *sql.DB, dialect string) error {
	if err := setup(dialect); err != nil {
		return err
	}
	return goose.Reset(db, "migrations")
}

// MigrationVersion returns the current schema version.
func MigrationVersion(db *sql.DB, dialect string) (int64, error) {
	if err := setup(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}
