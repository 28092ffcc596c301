package storage

import (
	"context"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

const postgresMigrationsDir = "migrations/postgres"

// MigratePostgres applies (or, with down, rolls back one step of) the
// embedded schema migrations against dsn.
func MigratePostgres(ctx context.Context, dsn string, down bool) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("goose: open db: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(postgresMigrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if down {
		if err := goose.DownContext(ctx, db, postgresMigrationsDir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	}
	if err := goose.UpContext(ctx, db, postgresMigrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
