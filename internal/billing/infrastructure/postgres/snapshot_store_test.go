package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestSnapshotStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := NewSnapshotStore(db, WithTable("selection_snapshots_test"))
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	_, _ = db.ExecContext(ctx, "DELETE FROM selection_snapshots_test")

	data, err := store.Load(ctx, "ixora_bill_selection_v1")
	if err != nil || data != nil {
		t.Fatalf("load missing: data=%s err=%v", data, err)
	}
	if err := store.Save(ctx, "ixora_bill_selection_v1", []byte(`{"bills":[]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "ixora_bill_selection_v1", []byte(`{"bills":[{"id":"1","source":"misc","amount":5}]}`)); err != nil {
		t.Fatalf("save overwrite: %v", err)
	}
	data, err = store.Load(ctx, "ixora_bill_selection_v1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var snap struct {
		Bills []json.RawMessage `json:"bills"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Bills) != 1 {
		t.Fatalf("expected overwritten snapshot, got %s", data)
	}
}

func TestSnapshotStore_NilDB(t *testing.T) {
	store := NewSnapshotStore(nil)
	if store.Table() != DefaultSnapshotTable {
		t.Fatalf("table %q", store.Table())
	}
	if _, err := store.Load(context.Background(), "k"); err == nil {
		t.Fatalf("expected error for nil db")
	}
	if err := store.Save(context.Background(), "k", []byte("{}")); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
