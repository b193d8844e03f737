package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationClientSession is the DDL for the client_session_kv table. It is
// safe to execute multiple times.
const MigrationClientSession = `
CREATE TABLE IF NOT EXISTS client_session_kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// pgRow represents a single row returned by QueryRow.
type pgRow interface {
	Scan(dest ...any) error
}

// pgConn is the minimal database surface Postgres needs. *pgxpool.Pool is
// adapted by pgxPoolWrapper; tests pass a mock.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Exec(ctx context.Context, sql string, args ...any) error
}

// Postgres keeps session entries in the client_session_kv table, one row per
// key.
type Postgres struct {
	db pgConn
}

// NewPostgres creates a store on top of any pgConn.
func NewPostgres(db pgConn) *Postgres {
	return &Postgres{db: db}
}

// NewPostgresFromPool creates a store directly from a pgx pool.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: &pgxPoolWrapper{pool: pool}}
}

// Migrate creates the backing table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.Exec(ctx, MigrationClientSession); err != nil {
		return fmt.Errorf("migrate client_session_kv: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM client_session_kv WHERE key = $1`

	var value string
	if err := p.db.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get session key %s: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	const query = `INSERT INTO client_session_kv (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value,
                                updated_at = EXCLUDED.updated_at`

	if err := p.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set session key %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	const query = `DELETE FROM client_session_kv WHERE key = ANY($1)`
	if err := p.db.Exec(ctx, query, keys); err != nil {
		return fmt.Errorf("delete session keys: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "no rows")
}

// pgxPoolWrapper drops the CommandTag from pgxpool.Pool.Exec so the pool
// satisfies pgConn.
type pgxPoolWrapper struct {
	pool *pgxpool.Pool
}

func (w *pgxPoolWrapper) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return w.pool.QueryRow(ctx, sql, args...)
}

func (w *pgxPoolWrapper) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := w.pool.Exec(ctx, sql, args...)
	return err
}
