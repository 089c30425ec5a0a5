package eventhub

import (
	"time"

	billing "ixora-billpay/internal/billing/domain"
)

// PullToRefresh asks listeners to drop cached data and reload.
type PullToRefresh struct {
	Scope      string
	OccurredAt time.Time
}

// LanguageChanged announces a new UI language (e.g. "ms", "en").
type LanguageChanged struct {
	Language   string
	OccurredAt time.Time
}

// SelectionChanged is published after every effective bill selection change.
type SelectionChanged struct {
	Action     string
	Count      int
	Total      float64
	OccurredAt time.Time
}

// PaymentResolved is published when a reconciler loop stops on a terminal
// status or after spending its attempt budget.
type PaymentResolved struct {
	Reference  string
	Phase      string
	Status     string
	Attempts   int
	// Bills are the bills the backend reports as covered by the payment.
	Bills      []billing.SelectableBill
	OccurredAt time.Time
}
