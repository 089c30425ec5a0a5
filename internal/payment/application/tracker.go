package application

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"ixora-billpay/internal/eventhub"
	payment "ixora-billpay/internal/payment/domain"
)

// ErrNotTracking is returned by Retry before any reference was tracked.
var ErrNotTracking = errors.New("payment tracker: no reference tracked")

// EventPublisher receives payment outcome notifications.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Tracker owns the polling loop for the current reference. At most one
// loop runs at a time; starting another cancels the previous one and any
// update it still produces is dropped.
type Tracker struct {
	reconciler *Reconciler
	publisher  EventPublisher
	logger     *zap.Logger

	mu     sync.Mutex
	snap   Snapshot
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// TrackerOption configures the tracker.
type TrackerOption func(*Tracker)

// WithTrackerPublisher publishes PaymentResolved when a loop stops on its own.
func WithTrackerPublisher(publisher EventPublisher) TrackerOption {
	return func(t *Tracker) {
		t.publisher = publisher
	}
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker constructs an idle tracker.
func NewTracker(reconciler *Reconciler, opts ...TrackerOption) (*Tracker, error) {
	if reconciler == nil {
		return nil, errors.New("payment tracker: nil reconciler")
	}
	t := &Tracker{
		reconciler: reconciler,
		logger:     zap.NewNop(),
		snap:       Snapshot{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Track starts polling reference. Tracking the reference already held is a
// no-op unless its loop was stopped; only Retry re-enters polling after the
// loop ended on its own.
func (t *Tracker) Track(reference string) error {
	if reference == "" {
		return payment.ErrEmptyReference
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var prev Snapshot
	if t.snap.Reference == reference {
		if t.snap.Phase != PhaseCancelled {
			return nil
		}
		prev = t.snap
	}
	t.startLocked(reference, prev)
	return nil
}

// Retry re-enters polling for the current reference with a fresh attempt
// budget. The known record and the receipt flag are kept.
func (t *Tracker) Retry() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Reference == "" {
		return ErrNotTracking
	}
	t.startLocked(t.snap.Reference, t.snap)
	return nil
}

// Snapshot returns the latest state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Reference returns the tracked reference, or "" when idle.
func (t *Tracker) Reference() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.Reference
}

// Stop cancels the running loop, if any.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.snap.Phase == PhasePolling {
		t.snap.Phase = PhaseCancelled
	}
}

// Wait blocks until every loop started so far has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) startLocked(reference string, prev Snapshot) {
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	gen := t.gen
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	next := prev
	if next.Reference != reference {
		next = Snapshot{Record: payment.NewStatusRecord(reference)}
	}
	next.Reference = reference
	next.Phase = PhasePolling
	next.Attempts = 0
	next.LastError = ""
	t.snap = next

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		final := t.reconciler.Poll(ctx, reference, next, func(s Snapshot) {
			t.update(gen, s)
		})
		t.finish(gen, final)
	}()
}

func (t *Tracker) update(gen uint64, snap Snapshot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	t.snap = snap
	return true
}

func (t *Tracker) finish(gen uint64, final Snapshot) {
	if !final.Phase.Done() {
		return
	}
	if !t.update(gen, final) {
		return
	}
	if t.publisher == nil {
		return
	}
	evt := eventhub.PaymentResolved{
		Reference:  final.Reference,
		Phase:      string(final.Phase),
		Status:     string(final.Record.Status),
		Attempts:   final.Attempts,
		Bills:      final.Record.Bills,
		OccurredAt: final.UpdatedAt,
	}
	if err := t.publisher.Publish(context.Background(), evt); err != nil {
		t.logger.Warn("payment event handler failed", zap.String("reference", final.Reference), zap.Error(err))
	}
}
