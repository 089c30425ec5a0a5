package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ixora-billpay/internal/observability/metrics"
	payment "ixora-billpay/internal/payment/domain"
)

const (
	// DefaultPollInterval is the fixed delay between status fetches.
	DefaultPollInterval = 4 * time.Second
	// DefaultMaxAttempts caps status fetches per polling run.
	DefaultMaxAttempts = 30
)

// Phase is the reconciler state for one reference.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePolling   Phase = "polling"
	PhaseResolved  Phase = "resolved"
	PhaseExhausted Phase = "exhausted"
	PhaseCancelled Phase = "cancelled"
)

// Done reports whether the loop has stopped on its own.
func (p Phase) Done() bool {
	return p == PhaseResolved || p == PhaseExhausted
}

// Snapshot is what a caller renders for a reference. An exhausted snapshot
// still reads as pending to the payer.
type Snapshot struct {
	Reference      string               `json:"reference"`
	Phase          Phase                `json:"phase"`
	Record         payment.StatusRecord `json:"record"`
	Attempts       int                  `json:"attempts"`
	LastError      string               `json:"lastError,omitempty"`
	ReceiptFetched bool                 `json:"receiptFetched"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// StatusFetcher reads payment documents from the backend. Both calls are
// pure reads.
type StatusFetcher interface {
	PaymentStatus(ctx context.Context, reference string) (json.RawMessage, error)
	PaymentReceipt(ctx context.Context, reference string) (json.RawMessage, error)
}

// Reconciler turns a reference into a terminal payment outcome by polling.
type Reconciler struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxAttempts int
	clock       Clock
	logger      *zap.Logger
}

// Option configures the reconciler.
type Option func(*Reconciler)

// WithInterval overrides the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Reconciler) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(attempts int) Option {
	return func(r *Reconciler) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler constructs a reconciler.
func NewReconciler(fetcher StatusFetcher, opts ...Option) (*Reconciler, error) {
	if fetcher == nil {
		return nil, errors.New("payment reconciler: nil fetcher")
	}
	r := &Reconciler{
		fetcher:     fetcher,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
		clock:       systemClock{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Interval returns the configured poll interval.
func (r *Reconciler) Interval() time.Duration { return r.interval }

// MaxAttempts returns the configured attempt budget.
func (r *Reconciler) MaxAttempts() int { return r.maxAttempts }

// Poll runs one polling run for reference, starting from prev. The attempt
// counter starts from zero; the record and receipt flag carry over. Fetch
// and parse errors are recorded in LastError and never change the status.
// onUpdate, when set, sees every intermediate snapshot. Once ctx is done
// nothing more is reported and the returned snapshot is cancelled.
func (r *Reconciler) Poll(ctx context.Context, reference string, prev Snapshot, onUpdate func(Snapshot)) Snapshot {
	snap := prev
	snap.Reference = reference
	if snap.Record.Reference != reference {
		snap.Record = payment.NewStatusRecord(reference)
		snap.ReceiptFetched = false
	}
	snap.Phase = PhasePolling
	snap.Attempts = 0
	snap.LastError = ""

	emit := func() {
		snap.UpdatedAt = r.clock.Now()
		if onUpdate != nil {
			onUpdate(snap)
		}
	}
	cancelled := func() Snapshot {
		snap.Phase = PhaseCancelled
		snap.UpdatedAt = r.clock.Now()
		return snap
	}

	if reference == "" {
		snap.Phase = PhaseIdle
		snap.LastError = payment.ErrEmptyReference.Error()
		emit()
		return snap
	}
	emit()

	for {
		if ctx.Err() != nil {
			return cancelled()
		}
		snap.Attempts++
		update, err := r.fetchStatus(ctx, reference)
		if ctx.Err() != nil {
			return cancelled()
		}
		switch {
		case err != nil && !errors.Is(err, payment.ErrMalformedBills):
			metrics.IncPollAttempt(metrics.ResultError)
			snap.LastError = err.Error()
			r.logger.Debug("payment status fetch failed",
				zap.String("reference", reference),
				zap.Int("attempt", snap.Attempts),
				zap.Error(err))
		default:
			metrics.IncPollAttempt(string(update.Status))
			snap.Record = snap.Record.Merge(update)
			snap.LastError = ""
			if err != nil {
				snap.LastError = err.Error()
				r.logger.Warn("payment status bills dropped", zap.String("reference", reference), zap.Error(err))
			}
		}

		if snap.Record.Status.IsTerminal() {
			if snap.Record.Status == payment.StatusSuccess && !snap.ReceiptFetched {
				snap.ReceiptFetched = true
				receipt, err := r.fetchReceipt(ctx, reference)
				if ctx.Err() != nil {
					return cancelled()
				}
				if err != nil {
					metrics.IncReceiptFetch(metrics.ResultError)
					snap.LastError = err.Error()
					r.logger.Warn("payment receipt fetch failed", zap.String("reference", reference), zap.Error(err))
				} else {
					metrics.IncReceiptFetch(metrics.ResultSuccess)
					snap.Record = snap.Record.WithReceipt(receipt)
				}
			}
			snap.Phase = PhaseResolved
			metrics.IncPaymentOutcome(string(snap.Phase), string(snap.Record.Status))
			r.logger.Info("payment resolved",
				zap.String("reference", reference),
				zap.String("status", string(snap.Record.Status)),
				zap.Int("attempts", snap.Attempts))
			emit()
			return snap
		}

		if snap.Attempts >= r.maxAttempts {
			snap.Phase = PhaseExhausted
			metrics.IncPaymentOutcome(string(snap.Phase), string(snap.Record.Status))
			r.logger.Info("payment polling exhausted",
				zap.String("reference", reference),
				zap.Int("attempts", snap.Attempts))
			emit()
			return snap
		}
		emit()

		if err := r.clock.Sleep(ctx, r.interval); err != nil {
			return cancelled()
		}
	}
}

func (r *Reconciler) fetchStatus(ctx context.Context, reference string) (payment.StatusRecord, error) {
	raw, err := r.fetcher.PaymentStatus(ctx, reference)
	if err != nil {
		return payment.StatusRecord{}, err
	}
	update, err := NormalizeStatus(raw)
	if err != nil && !errors.Is(err, payment.ErrMalformedBills) {
		return payment.StatusRecord{}, err
	}
	if update.Reference != "" && update.Reference != reference {
		return payment.StatusRecord{}, fmt.Errorf("%w: got %s", payment.ErrReferenceMismatch, update.Reference)
	}
	return update, err
}

func (r *Reconciler) fetchReceipt(ctx context.Context, reference string) (payment.Receipt, error) {
	raw, err := r.fetcher.PaymentReceipt(ctx, reference)
	if err != nil {
		return payment.Receipt{}, err
	}
	receipt, err := NormalizeReceipt(raw)
	if err != nil {
		return payment.Receipt{}, err
	}
	if receipt.Reference != "" && receipt.Reference != reference {
		return payment.Receipt{}, fmt.Errorf("%w: got %s", payment.ErrReferenceMismatch, receipt.Reference)
	}
	if receipt.Reference == "" {
		receipt.Reference = reference
	}
	return receipt, nil
}
