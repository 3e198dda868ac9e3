// Package store owns the Postgres connection pool and schema migrations
// shared by the threshold, maintenance, and alert repositories. It
// pairs jackc/pgx/v5's stdlib driver with jmoiron/sqlx for convenient
// struct scanning, the same combination jordigilh-kubernaut's go.mod
// carries for its own persistence layer.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps a sqlx handle over a pgx stdlib connection.
type DB struct {
	*sqlx.DB
}

// Open connects to Postgres and applies any pending goose migrations.
// It sets the pool-size defaults; the 5s DB statement timeout of
// spec.md §5 is applied per call by StatementContext below.
func Open(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := sqlx.NewDb(sqlDB, "pgx")

	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	log.Info().Msg("postgres connected and migrations applied")
	return &DB{db}, nil
}

// StatementContext returns a context bounded by the standard 5s DB
// statement timeout (spec.md §5), derived from parent so an HTTP
// client disconnect still cancels the statement.
func StatementContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 5*time.Second)
}
