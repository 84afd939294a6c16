package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_kv (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_counters (
    key   TEXT PRIMARY KEY,
    value BIGINT NOT NULL
);`

// PostgresStore keeps the key space in two tables: opaque values and counters.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, ledgerSchema)
	return wrapKV("ensure schema", "ledger", err)
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM ledger_kv WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapKV("select", key, ErrKeyNotFound)
	}
	return value, wrapKV("select", key, err)
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	const query = `INSERT INTO ledger_kv (key, value, updated_at) VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return wrapKV("upsert", key, err)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ledger_kv WHERE key = $1`, key)
	return wrapKV("delete", key, err)
}

// Increment relies on the row lock taken by ON CONFLICT DO UPDATE for atomicity.
func (s *PostgresStore) Increment(ctx context.Context, key string, seed int64) (int64, error) {
	const query = `INSERT INTO ledger_counters (key, value) VALUES ($1, $2 + 1)
        ON CONFLICT (key) DO UPDATE SET value = ledger_counters.value + 1
        RETURNING value`
	var value int64
	if err := s.db.GetContext(ctx, &value, query, key, seed); err != nil {
		return 0, wrapKV("increment", key, err)
	}
	return value, nil
}
