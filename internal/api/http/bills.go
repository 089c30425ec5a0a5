package apihttp

import (
	"context"
	"errors"
	"net/http"

	billingapp "ixora-billpay/internal/billing/application"
	billing "ixora-billpay/internal/billing/domain"
)

// BillSearcher looks up outstanding bills.
type BillSearcher interface {
	Search(ctx context.Context, q billingapp.SearchQuery) ([]billing.SelectableBill, error)
	SearchAll(ctx context.Context, ic string) ([]billing.SelectableBill, error)
}

// SelectionReader answers whether a bill is already selected.
type SelectionReader interface {
	Has(bill billing.SelectableBill) bool
}

// BillsHandler serves bill searches.
type BillsHandler struct {
	searcher  BillSearcher
	selection SelectionReader
}

// NewBillsHandler constructs a BillsHandler. selection may be nil.
func NewBillsHandler(searcher BillSearcher, selection SelectionReader) (*BillsHandler, error) {
	if searcher == nil {
		return nil, errors.New("bills handler: nil searcher")
	}
	return &BillsHandler{searcher: searcher, selection: selection}, nil
}

type billView struct {
	billing.SelectableBill
	Key      string `json:"key"`
	Selected bool   `json:"selected"`
}

// ServeHTTP handles GET /api/v1/bills.
func (h *BillsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	module := query.Get("module")
	ic := query.Get("ic")
	ref := query.Get("ref")

	var (
		bills []billing.SelectableBill
		err   error
	)
	if module == "" {
		if ic == "" {
			http.Error(w, "ic is required when module is omitted", http.StatusBadRequest)
			return
		}
		bills, err = h.searcher.SearchAll(r.Context(), ic)
	} else {
		bills, err = h.searcher.Search(r.Context(), billingapp.SearchQuery{
			Source:    billing.Source(module),
			IC:        ic,
			Reference: ref,
		})
	}
	switch {
	case errors.Is(err, billing.ErrUnknownSource), errors.Is(err, billingapp.ErrEmptyQuery):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, billingapp.ErrMalformedRecord):
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		http.Error(w, "bill lookup failed", http.StatusBadGateway)
		return
	}

	views := make([]billView, 0, len(bills))
	for _, bill := range bills {
		view := billView{SelectableBill: bill, Key: billing.Key(bill)}
		if h.selection != nil {
			view.Selected = h.selection.Has(bill)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": views, "count": len(views)})
}
