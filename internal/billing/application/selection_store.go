package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	billing "ixora-billpay/internal/billing/domain"
	"ixora-billpay/internal/eventhub"
	"ixora-billpay/internal/observability/metrics"
)

// SnapshotStore persists raw selection snapshots under a key. Load returns
// nil data and a nil error when nothing is stored.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// EventPublisher receives selection change notifications.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// DefaultStorageKey is the versioned key used when none is configured.
const DefaultStorageKey = "ixora_bill_selection_v1"

// Store owns the bill selection. All mutations go through billing.Reduce
// under one lock, so readers never observe a partial update. Persistence
// failures are logged and otherwise ignored.
//
// Size gauges and SelectionChanged events never go backwards: each change
// is stamped under mu, and an emission overtaken by a newer change is
// dropped. Subscribers must not mutate the store from the handler.
type Store struct {
	mu        sync.Mutex
	seq       uint64
	emitMu    sync.Mutex
	emitted   uint64
	sel       billing.Selection
	hydrated  bool
	dirty     bool
	snapshots SnapshotStore
	key       string
	timeout   time.Duration
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithStorageKey overrides the snapshot key.
func WithStorageKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithPersistTimeout bounds each snapshot read or write.
func WithPersistTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithPublisher publishes SelectionChanged after each effective change.
func WithPublisher(publisher EventPublisher) StoreOption {
	return func(s *Store) {
		s.publisher = publisher
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a store. A nil snapshots adapter keeps the selection
// in memory only.
func NewStore(snapshots SnapshotStore, opts ...StoreOption) *Store {
	s := &Store{
		snapshots: snapshots,
		key:       DefaultStorageKey,
		timeout:   5 * time.Second,
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hydrate loads the persisted snapshot once and replays it through ADD.
// Missing or malformed data leaves the store as it is. Until Hydrate has
// run, mutations are not written back.
func (s *Store) Hydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return
	}
	defer func() { s.hydrated = true }()
	if s.snapshots == nil {
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	data, err := s.snapshots.Load(loadCtx, s.key)
	cancel()
	if err != nil {
		metrics.IncPersistError("load")
		s.logger.Warn("selection hydrate failed", zap.String("key", s.key), zap.Error(err))
		data = nil
	}
	if len(data) > 0 {
		snap, err := billing.DecodeSnapshot(data)
		if err != nil {
			metrics.IncPersistError("decode")
			s.logger.Warn("selection snapshot discarded", zap.String("key", s.key), zap.Error(err))
		} else {
			s.sel = billing.Replay(s.sel, snap)
		}
	}
	if s.dirty {
		s.persistLocked()
	}
	s.logger.Debug("selection hydrated", zap.Int("count", s.sel.Count()))
}

// Hydrated reports whether Hydrate has completed.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Add inserts bill at the end of the selection. It returns false when the
// amount is not a finite positive number, the source is unknown, or a bill
// with the same key is already present.
func (s *Store) Add(bill billing.SelectableBill) bool {
	return s.dispatch(billing.Add(bill))
}

// Remove drops the bill with the same key, if any.
func (s *Store) Remove(bill billing.SelectableBill) {
	s.dispatch(billing.Remove(bill))
}

// Clear empties the selection.
func (s *Store) Clear() {
	s.dispatch(billing.Clear())
}

// Has reports whether a bill with the same key is selected.
func (s *Store) Has(bill billing.SelectableBill) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Has(bill)
}

// IsDuplicate is Has under the name add call sites read best with.
func (s *Store) IsDuplicate(bill billing.SelectableBill) bool {
	return s.Has(bill)
}

// Bills returns the selected bills in insertion order.
func (s *Store) Bills() []billing.SelectableBill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Bills()
}

// Total returns the sum of selected amounts.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Total()
}

// Count returns the number of selected bills.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Count()
}

// View is a consistent read of the selection.
type View struct {
	Bills []billing.SelectableBill `json:"bills"`
	Total float64                  `json:"total"`
	Count int                      `json:"count"`
}

// View returns bills, total and count taken under a single lock.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{Bills: s.sel.Bills(), Total: s.sel.Total(), Count: s.sel.Count()}
}

// Snapshot returns the persisted form of the current selection.
func (s *Store) Snapshot() billing.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return billing.SnapshotOf(s.sel)
}

func (s *Store) dispatch(action billing.Action) bool {
	s.mu.Lock()
	next, changed := billing.Reduce(s.sel, action)
	if !changed {
		s.mu.Unlock()
		metrics.IncSelectionMutation(string(action.Kind), false)
		return false
	}
	s.sel = next
	if s.hydrated {
		s.persistLocked()
	} else {
		s.dirty = true
	}
	s.seq++
	seq := s.seq
	evt := eventhub.SelectionChanged{
		Action:     string(action.Kind),
		Count:      s.sel.Count(),
		Total:      s.sel.Total(),
		OccurredAt: s.now(),
	}
	s.mu.Unlock()

	metrics.IncSelectionMutation(evt.Action, true)
	s.emit(seq, evt)
	return true
}

// emit publishes evt unless a later change has already been emitted.
func (s *Store) emit(seq uint64, evt eventhub.SelectionChanged) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if seq < s.emitted {
		return
	}
	s.emitted = seq
	metrics.SetSelection(evt.Count, evt.Total)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.Background(), evt); err != nil {
		s.logger.Warn("selection event handler failed", zap.Error(err))
	}
}

// persistLocked writes the current selection. Writes happen under the
// store lock, so they reach the adapter in mutation order.
func (s *Store) persistLocked() {
	s.dirty = false
	if s.snapshots == nil {
		return
	}
	data, err := billing.EncodeSnapshot(billing.SnapshotOf(s.sel))
	if err != nil {
		metrics.IncPersistError("encode")
		s.logger.Warn("selection encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.snapshots.Save(ctx, s.key, data); err != nil {
		metrics.IncPersistError("save")
		s.logger.Warn("selection persist failed", zap.String("key", s.key), zap.Error(err))
	}
}
