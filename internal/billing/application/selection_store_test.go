package application

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	billing "ixora-billpay/internal/billing/domain"
	"ixora-billpay/internal/billing/infrastructure/memory"
	"ixora-billpay/internal/eventhub"
)

type failingSnapshots struct {
	mu    sync.Mutex
	saves int
}

func (f *failingSnapshots) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage disabled")
}

func (f *failingSnapshots) Save(context.Context, string, []byte) error {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()
	return errors.New("storage disabled")
}

func assessment(id, number string, amount float64) billing.SelectableBill {
	return billing.SelectableBill{
		ID:         billing.BillID(id),
		BillNumber: number,
		Amount:     amount,
		DueDate:    "2025-06-30",
		Source:     billing.SourceAssessment,
	}
}

func TestStore_AddRejectsInvalidAndDuplicates(t *testing.T) {
	store := NewStore(nil)
	store.Hydrate(context.Background())

	if store.Add(assessment("1", "A100", 0)) {
		t.Fatalf("zero amount accepted")
	}
	if store.Add(assessment("1", "A100", -5)) {
		t.Fatalf("negative amount accepted")
	}
	if store.Count() != 0 {
		t.Fatalf("size changed by rejected adds: %d", store.Count())
	}

	if !store.Add(assessment("1", "A100", 50)) {
		t.Fatalf("valid add rejected")
	}
	dup := assessment("1", "A100", 999)
	if !store.IsDuplicate(dup) || !store.Has(dup) {
		t.Fatalf("duplicate not detected")
	}
	if store.Add(dup) {
		t.Fatalf("duplicate accepted")
	}
	if store.Count() != 1 || store.Total() != 50 {
		t.Fatalf("count=%d total=%v", store.Count(), store.Total())
	}
}

func TestStore_TotalsTrackMutations(t *testing.T) {
	store := NewStore(nil)
	store.Hydrate(context.Background())

	a := assessment("1", "A1", 10.5)
	b := billing.SelectableBill{ID: "2", BillNumber: "B1", Amount: 4.5, Source: billing.SourceBooth}
	store.Add(a)
	store.Add(b)

	view := store.View()
	if view.Count != 2 || view.Total != 15 || len(view.Bills) != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}
	store.Remove(a)
	if store.Count() != 1 || store.Total() != 4.5 {
		t.Fatalf("after remove: count=%d total=%v", store.Count(), store.Total())
	}
	store.Remove(a)
	store.Clear()
	if store.Count() != 0 || store.Total() != 0 {
		t.Fatalf("after clear: count=%d total=%v", store.Count(), store.Total())
	}
}

func TestStore_HydrateReplaysAndPersists(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	snapshots.Put(DefaultStorageKey, []byte(`{"bills":[
		{"id":1,"billNumber":"A100","amount":50,"dueDate":"2025-01-01","source":"assessment"},
		{"id":1,"billNumber":"A100","amount":60,"dueDate":"2025-01-01","source":"assessment"},
		{"id":2,"billNumber":"","amount":-1,"dueDate":"2025-01-01","source":"misc"}
	]}`))

	store := NewStore(snapshots)
	store.Hydrate(ctx)
	if !store.Hydrated() {
		t.Fatalf("expected hydrated")
	}
	if store.Count() != 1 || store.Total() != 50 {
		t.Fatalf("hydrate: count=%d total=%v", store.Count(), store.Total())
	}
	if snapshots.Saves() != 0 {
		t.Fatalf("hydrate alone should not write, saves=%d", snapshots.Saves())
	}

	store.Add(assessment("3", "A300", 25))
	if snapshots.Saves() != 1 {
		t.Fatalf("expected one save after add, got %d", snapshots.Saves())
	}

	reloaded := NewStore(snapshots)
	reloaded.Hydrate(ctx)
	if reloaded.Count() != 2 {
		t.Fatalf("reloaded count: %d", reloaded.Count())
	}
	for _, bill := range store.Bills() {
		if !reloaded.Has(bill) {
			t.Fatalf("bill %s missing after reload", billing.Key(bill))
		}
	}
}

func TestStore_NoWritesBeforeHydration(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	snapshots.Put(DefaultStorageKey, []byte(`{"bills":[{"id":"9","billNumber":"Z9","amount":9,"source":"misc"}]}`))

	store := NewStore(snapshots)
	store.Add(assessment("1", "A1", 1))
	if snapshots.Saves() != 0 {
		t.Fatalf("write raced initial load")
	}

	store.Hydrate(ctx)
	if store.Count() != 2 {
		t.Fatalf("expected early add plus persisted bill, got %d", store.Count())
	}
	if snapshots.Saves() != 1 {
		t.Fatalf("expected pending change flushed after hydration, saves=%d", snapshots.Saves())
	}

	data, err := snapshots.Load(ctx, DefaultStorageKey)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var snap billing.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Bills) != 2 {
		t.Fatalf("persisted %d bills", len(snap.Bills))
	}
}

func TestStore_MalformedSnapshotIsEmpty(t *testing.T) {
	snapshots := memory.NewSnapshotStore()
	snapshots.Put(DefaultStorageKey, []byte(`{"bills": "nope"`))

	store := NewStore(snapshots)
	store.Hydrate(context.Background())
	if store.Count() != 0 {
		t.Fatalf("expected empty store, got %d", store.Count())
	}
	if !store.Add(assessment("1", "A1", 1)) {
		t.Fatalf("store unusable after malformed snapshot")
	}
}

func TestStore_StorageFailuresDegradeToMemory(t *testing.T) {
	snapshots := &failingSnapshots{}
	store := NewStore(snapshots, WithStorageKey("custom_v1"))
	store.Hydrate(context.Background())

	if !store.Add(assessment("1", "A1", 12)) {
		t.Fatalf("add failed with storage down")
	}
	store.Remove(assessment("1", "A1", 12))
	store.Add(assessment("2", "A2", 3))
	if store.Count() != 1 || store.Total() != 3 {
		t.Fatalf("count=%d total=%v", store.Count(), store.Total())
	}
	if snapshots.saves != 3 {
		t.Fatalf("expected a write attempt per change, got %d", snapshots.saves)
	}
}

func TestStore_PublishesSelectionChanged(t *testing.T) {
	hub := eventhub.New()
	var events []eventhub.SelectionChanged
	eventhub.Subscribe(hub, func(_ context.Context, evt eventhub.SelectionChanged) error {
		events = append(events, evt)
		return nil
	})

	store := NewStore(nil, WithPublisher(hub))
	store.Hydrate(context.Background())
	store.Add(assessment("1", "A1", 5))
	store.Add(assessment("1", "A1", 5))
	store.Clear()

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Action != string(billing.ActionAdd) || events[0].Count != 1 || events[0].Total != 5 {
		t.Fatalf("unexpected add event: %+v", events[0])
	}
	if events[1].Action != string(billing.ActionClear) || events[1].Count != 0 {
		t.Fatalf("unexpected clear event: %+v", events[1])
	}
}

func TestStore_ConcurrentAddsEmitInMutationOrder(t *testing.T) {
	const writers = 64
	for round := 0; round < 50; round++ {
		hub := eventhub.New()
		var (
			mu        sync.Mutex
			last      eventhub.SelectionChanged
			seen      int
			regressed bool
		)
		eventhub.Subscribe(hub, func(_ context.Context, evt eventhub.SelectionChanged) error {
			mu.Lock()
			defer mu.Unlock()
			if evt.Count <= last.Count && seen > 0 {
				regressed = true
			}
			last = evt
			seen++
			return nil
		})

		store := NewStore(nil, WithPublisher(hub))
		store.Hydrate(context.Background())

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				store.Add(assessment(strconv.Itoa(i), "A"+strconv.Itoa(i), 1))
			}(i)
		}
		close(start)
		wg.Wait()

		mu.Lock()
		if regressed {
			mu.Unlock()
			t.Fatalf("round %d: SelectionChanged count went backwards", round)
		}
		if last.Count != store.Count() || last.Total != store.Total() {
			mu.Unlock()
			t.Fatalf("round %d: last event count=%d total=%v, store count=%d total=%v",
				round, last.Count, last.Total, store.Count(), store.Total())
		}
		mu.Unlock()
	}
}
