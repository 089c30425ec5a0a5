package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSnapshotStore_SaveLoadOverwrite(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "selection.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	data, err := store.Load(ctx, "ixora_bill_selection_v1")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil for missing key, got %s", data)
	}

	if err := store.Save(ctx, "ixora_bill_selection_v1", []byte(`{"bills":[]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "ixora_bill_selection_v1", []byte(`{"bills":[{"id":"1"}]}`)); err != nil {
		t.Fatalf("save overwrite: %v", err)
	}
	data, err = store.Load(ctx, "ixora_bill_selection_v1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `{"bills":[{"id":"1"}]}` {
		t.Fatalf("unexpected payload: %s", data)
	}

	if _, err := store.Load(ctx, ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
