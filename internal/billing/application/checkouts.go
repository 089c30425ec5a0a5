package application

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	billing "ixora-billpay/internal/billing/domain"
	"ixora-billpay/internal/eventhub"
	payment "ixora-billpay/internal/payment/domain"
)

// DefaultCheckoutTTL bounds how long a checkout reference is remembered.
const DefaultCheckoutTTL = 24 * time.Hour

// CheckoutLedger remembers which bills each checkout reference covered.
type CheckoutLedger struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewCheckoutLedger constructs a ledger. A non-positive ttl uses
// DefaultCheckoutTTL.
func NewCheckoutLedger(ttl time.Duration) *CheckoutLedger {
	if ttl <= 0 {
		ttl = DefaultCheckoutTTL
	}
	return &CheckoutLedger{cache: cache.New(ttl, time.Hour)}
}

// Record stores the bills a checkout covered under its reference.
func (l *CheckoutLedger) Record(reference string, bills []billing.SelectableBill) {
	if reference == "" || len(bills) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.SetDefault(reference, append([]billing.SelectableBill(nil), bills...))
}

// Take returns and forgets the bills recorded for reference.
func (l *CheckoutLedger) Take(reference string) ([]billing.SelectableBill, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.cache.Get(reference)
	if !ok {
		return nil, false
	}
	l.cache.Delete(reference)
	return v.([]billing.SelectableBill), true
}

// RemoveAll drops every listed bill that is selected and returns how many
// were removed.
func (s *Store) RemoveAll(bills []billing.SelectableBill) int {
	removed := 0
	for _, bill := range bills {
		if s.dispatch(billing.Remove(bill)) {
			removed++
		}
	}
	return removed
}

// SettlePaidBills returns a PaymentResolved handler that removes the bills
// a successful payment covered. The bills recorded at checkout are used
// when the reference is known; otherwise the bills named by the payment
// record. Bills outside the payment stay selected.
func SettlePaidBills(store *Store, ledger *CheckoutLedger, logger *zap.Logger) func(context.Context, eventhub.PaymentResolved) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, evt eventhub.PaymentResolved) error {
		if evt.Status != string(payment.StatusSuccess) {
			return nil
		}
		bills, ok := []billing.SelectableBill(nil), false
		if ledger != nil {
			bills, ok = ledger.Take(evt.Reference)
		}
		if !ok {
			bills = evt.Bills
		}
		removed := store.RemoveAll(bills)
		logger.Info("paid bills settled",
			zap.String("reference", evt.Reference),
			zap.Bool("checkout_known", ok),
			zap.Int("paid", len(bills)),
			zap.Int("removed", removed))
		return nil
	}
}
