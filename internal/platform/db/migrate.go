package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs a goose command (up, down, status, redo, version) against the embedded
// migrations.
func Migrate(ctx context.Context, sqlDB *sql.DB, command string, args ...string) error {
	if sqlDB == nil {
		return fmt.Errorf("platform/db: migrate: db is required")
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/db: set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, sqlDB, "migrations", args...); err != nil {
		return fmt.Errorf("platform/db: goose %s: %w", command, err)
	}
	return nil
}
