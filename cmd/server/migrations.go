package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/lexfold/alchemy-api/migrations"
)

// runMigrations applies the embedded goose migrations at startup so the
// schema is always current before the worker pool starts claiming jobs.
func runMigrations(db *sql.DB, appLogger *slog.Logger) error {
	migrationLogger := appLogger.With("component", "migrations")

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetBaseFS(migrations.FS)

	start := time.Now()
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	migrationLogger.Info("Migrations applied",
		"version", version,
		"duration", time.Since(start).String())
	return nil
}
