package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultSnapshotTable holds one row per storage key.
const DefaultSnapshotTable = "selection_snapshots"

// SnapshotStore is a Postgres implementation of the selection snapshot store.
type SnapshotStore struct {
	db    *sql.DB
	table string
}

// NewSnapshotStore constructs a snapshot store.
func NewSnapshotStore(db *sql.DB, opts ...SnapshotOption) *SnapshotStore {
	store := &SnapshotStore{db: db, table: DefaultSnapshotTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// SnapshotOption configures the snapshot store.
type SnapshotOption func(*SnapshotStore)

// WithTable overrides the table name.
func WithTable(table string) SnapshotOption {
	return func(store *SnapshotStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Table returns the table name in use.
func (s *SnapshotStore) Table() string { return s.table }

// EnsureSchema creates the snapshot table when missing.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("snapshot store: nil db")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	storage_key TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Load returns the snapshot payload for key, or nil when absent.
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("snapshot store: nil db")
	}
	if key == "" {
		return nil, errors.New("snapshot store: empty key")
	}
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE storage_key = $1`, s.table)
	var payload []byte
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

// Save upserts the snapshot payload for key.
func (s *SnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	if s == nil || s.db == nil {
		return errors.New("snapshot store: nil db")
	}
	if key == "" {
		return errors.New("snapshot store: empty key")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (storage_key, payload, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (storage_key)
DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`, s.table)
	_, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().UTC())
	return err
}
