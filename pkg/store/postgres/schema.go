// Package postgres provides a PostgreSQL-backed [store.Store] built on a
// [pgxpool.Pool]. Values are kept in a single JSONB key/value table that
// [Migrate] creates on startup.
//
// Usage:
//
//	s, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	entries, err := store.LoadSession(ctx, s)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlEntries = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key         TEXT         PRIMARY KEY,
    value       JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates the kv_entries table if it does not exist. It is idempotent
// and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlEntries); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
