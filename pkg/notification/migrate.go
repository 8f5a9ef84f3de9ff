package notification

import (
	"context"
	"embed"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrMigrationFailed wraps goose failures during schema setup.
var ErrMigrationFailed = errors.New("failed to apply notification store migrations")

// Migrate applies the embedded schema migrations for the Postgres store.
// Bridges the pgx pool to database/sql since goose expects the standard
// library interface.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}
