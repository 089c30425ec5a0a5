package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ixora-billpay/internal/eventhub"
	payment "ixora-billpay/internal/payment/domain"
)

// gateClock parks every sleep until the context is done or release is called.
type gateClock struct {
	sleeping chan struct{}
	release  chan struct{}
}

func newGateClock() *gateClock {
	return &gateClock{sleeping: make(chan struct{}, 64), release: make(chan struct{}, 64)}
}

func (c *gateClock) Now() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

func (c *gateClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.sleeping <- struct{}{}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.release:
		return nil
	}
}

func (c *gateClock) waitSleeping(t *testing.T) {
	t.Helper()
	select {
	case <-c.sleeping:
	case <-time.After(2 * time.Second):
		t.Fatalf("poll loop never slept")
	}
}

type resolvedLog struct {
	mu     sync.Mutex
	events []eventhub.PaymentResolved
}

func (l *resolvedLog) subscribe(hub *eventhub.Hub) {
	eventhub.Subscribe(hub, func(_ context.Context, evt eventhub.PaymentResolved) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, evt)
		return nil
	})
}

func (l *resolvedLog) all() []eventhub.PaymentResolved {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]eventhub.PaymentResolved(nil), l.events...)
}

func newTestTracker(t *testing.T, fetcher StatusFetcher, clock Clock, opts ...TrackerOption) *Tracker {
	t.Helper()
	tracker, err := NewTracker(newTestReconciler(t, fetcher, clock), opts...)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return tracker
}

func TestTracker_ResolvesAndPublishes(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := newScriptedFetcher()
	fetcher.script(ref, pending(), pending(), success())
	hub := eventhub.New()
	var log resolvedLog
	log.subscribe(hub)

	tracker := newTestTracker(t, fetcher, newFakeClock(), WithTrackerPublisher(hub))
	if tracker.Snapshot().Phase != PhaseIdle {
		t.Fatalf("expected idle tracker")
	}
	if err := tracker.Track(ref); err != nil {
		t.Fatalf("track: %v", err)
	}
	tracker.Wait()

	snap := tracker.Snapshot()
	if snap.Phase != PhaseResolved || snap.Record.Status != payment.StatusSuccess || snap.Attempts != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	events := log.all()
	if len(events) != 1 || events[0].Reference != ref || events[0].Status != string(payment.StatusSuccess) {
		t.Fatalf("unexpected events: %+v", events)
	}

	if err := tracker.Track(ref); err != nil {
		t.Fatalf("track again: %v", err)
	}
	tracker.Wait()
	if status, _ := fetcher.calls(ref); status != 3 {
		t.Fatalf("tracking a resolved reference polled again: %d", status)
	}
}

func TestTracker_NewReferenceCancelsPrevious(t *testing.T) {
	defer goleak.VerifyNone(t)

	const other = "IXO-20250101120500-0002"
	fetcher := newScriptedFetcher()
	fetcher.script(ref, pending())
	fetcher.script(other, response{body: `{"status":"failed"}`})
	clock := newGateClock()
	tracker := newTestTracker(t, fetcher, clock)

	if err := tracker.Track(ref); err != nil {
		t.Fatalf("track: %v", err)
	}
	clock.waitSleeping(t)

	if err := tracker.Track(other); err != nil {
		t.Fatalf("track other: %v", err)
	}
	tracker.Wait()

	snap := tracker.Snapshot()
	if snap.Reference != other || snap.Phase != PhaseResolved || snap.Record.Status != payment.StatusFailed {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if status, _ := fetcher.calls(ref); status != 1 {
		t.Fatalf("previous reference kept polling: %d fetches", status)
	}
}

func TestTracker_StopCancels(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := newScriptedFetcher()
	fetcher.script(ref, pending())
	clock := newGateClock()
	tracker := newTestTracker(t, fetcher, clock)

	if err := tracker.Track(ref); err != nil {
		t.Fatalf("track: %v", err)
	}
	clock.waitSleeping(t)
	tracker.Stop()
	tracker.Wait()

	if phase := tracker.Snapshot().Phase; phase != PhaseCancelled {
		t.Fatalf("expected cancelled, got %s", phase)
	}
	if status, _ := fetcher.calls(ref); status != 1 {
		t.Fatalf("fetches after stop: %d", status)
	}
}

func TestTracker_RetryAfterExhaustion(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := newScriptedFetcher()
	fetcher.script(ref, pending())
	reconciler, err := NewReconciler(fetcher, WithClock(newFakeClock()), WithMaxAttempts(3))
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	hub := eventhub.New()
	var log resolvedLog
	log.subscribe(hub)
	tracker, err := NewTracker(reconciler, WithTrackerPublisher(hub))
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}

	if err := tracker.Retry(); !errors.Is(err, ErrNotTracking) {
		t.Fatalf("expected ErrNotTracking, got %v", err)
	}
	if err := tracker.Track(ref); err != nil {
		t.Fatalf("track: %v", err)
	}
	tracker.Wait()
	if snap := tracker.Snapshot(); snap.Phase != PhaseExhausted || snap.Attempts != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	fetcher.script(ref, pending(), success())
	fetcher.mu.Lock()
	fetcher.status[ref] = 0
	fetcher.mu.Unlock()
	if err := tracker.Retry(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	tracker.Wait()

	snap := tracker.Snapshot()
	if snap.Phase != PhaseResolved || snap.Attempts != 2 {
		t.Fatalf("unexpected snapshot after retry: %+v", snap)
	}
	if _, receipts := fetcher.calls(ref); receipts != 1 {
		t.Fatalf("expected one receipt fetch, got %d", receipts)
	}
	events := log.all()
	if len(events) != 2 || events[0].Phase != string(PhaseExhausted) || events[1].Phase != string(PhaseResolved) {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestTracker_RejectsEmptyReference(t *testing.T) {
	tracker := newTestTracker(t, newScriptedFetcher(), newFakeClock())
	if err := tracker.Track(""); !errors.Is(err, payment.ErrEmptyReference) {
		t.Fatalf("expected ErrEmptyReference, got %v", err)
	}
}
