package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upsertEntry = `INSERT INTO kv_entries (namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value`
	selectEntry = `SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2`
	deleteEntry = `DELETE FROM kv_entries WHERE namespace = $1 AND key = $2`
	selectKeys  = `SELECT key FROM kv_entries WHERE namespace = $1 ORDER BY key`
)

// pgMedium implements Medium on PostgreSQL using a single kv_entries table.
// Each Write is a committed upsert, satisfying the durability contract.
type pgMedium struct {
	db *pgxpool.Pool
}

// NewPgMedium creates a Medium over a PostgreSQL connection pool.
// The kv_entries table is created by the migration under migrations/.
func NewPgMedium(db *pgxpool.Pool) Medium {
	return &pgMedium{db: db}
}

func (m *pgMedium) Write(ctx context.Context, namespace, key string, value []byte) error {
	if _, err := m.db.Exec(ctx, upsertEntry, namespace, key, value); err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (m *pgMedium) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	if err := m.db.QueryRow(ctx, selectEntry, namespace, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to select %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (m *pgMedium) Delete(ctx context.Context, namespace, key string) error {
	if _, err := m.db.Exec(ctx, deleteEntry, namespace, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (m *pgMedium) Keys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := m.db.Query(ctx, selectKeys, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate namespace %s: %w", namespace, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key in namespace %s: %w", namespace, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate namespace %s: %w", namespace, err)
	}
	return keys, nil
}
