package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultSnapshotTable holds one row per storage key.
const DefaultSnapshotTable = "selection_snapshots"

// SnapshotStore keeps selection snapshots in a local SQLite file.
type SnapshotStore struct {
	db    *sql.DB
	table string
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, errors.New("sqlite snapshot store: empty path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	store := NewSnapshotStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSnapshotStore wraps an open database.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db, table: DefaultSnapshotTable}
}

// DB exposes the underlying handle.
func (s *SnapshotStore) DB() *sql.DB { return s.db }

// Table returns the table name in use.
func (s *SnapshotStore) Table() string { return s.table }

// Close closes the database.
func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the snapshot table when missing.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite snapshot store: nil db")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	storage_key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Load returns the snapshot payload for key, or nil when absent.
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite snapshot store: nil db")
	}
	if key == "" {
		return nil, errors.New("sqlite snapshot store: empty key")
	}
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE storage_key = ?`, s.table)
	var payload string
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(payload), nil
}

// Save upserts the snapshot payload for key.
func (s *SnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite snapshot store: nil db")
	}
	if key == "" {
		return errors.New("sqlite snapshot store: empty key")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (storage_key, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (storage_key)
DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`, s.table)
	_, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
