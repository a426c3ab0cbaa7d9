package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storeledger/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Queryer is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repository methods that must run inside the reservation transaction take a
// Queryer so callers decide the transaction boundary.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the connection pool with transaction and health helpers.
type DB struct {
	*sql.DB
}

// New opens a pgx-backed connection pool and verifies connectivity.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Schema,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Health reports basic pool statistics for the health endpoint.
func (d *DB) Health(ctx context.Context) map[string]any {
	health := map[string]any{"status": "up"}

	if err := d.PingContext(ctx); err != nil {
		health["status"] = "down"
		health["error"] = err.Error()
		return health
	}

	stats := d.Stats()
	health["open_connections"] = stats.OpenConnections
	health["in_use"] = stats.InUse
	health["idle"] = stats.Idle
	return health
}

// RunInTransaction executes fn inside a transaction, rolling back on error or
// panic and committing otherwise.
func (d *DB) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}
