// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/newsletter/internal/database"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage database schema migrations",
		Commands: []*cli.Command{
			migrationAction("up", "Apply all pending migrations", database.RunMigrations),
			migrationAction("down", "Roll back the most recent migration", database.MigrateDown),
			migrationAction("reset", "Roll back all migrations", database.MigrateReset),
			migrationAction("version", "Print the current schema version", nil),
		},
	}
}

// migrationAction runs op against the configured database without the
// automatic migration Open performs, then prints the resulting version.
func migrationAction(name, usage string, op func(db *sql.DB, dialect string) error) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(_ context.Context, cmd *cli.Command) error {
			dsn := cmd.String("database-dsn")
			dialect := database.Dialect(dsn)

			db, err := database.Connect(dsn)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if op != nil {
				if err := op(db.DB, dialect); err != nil {
					return fmt.Errorf("migrate %s: %w", name, err)
				}
			}

			version, err := database.MigrationVersion(db.DB, dialect)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "schema version %d\n", version)
			return err
		},
	}
}
