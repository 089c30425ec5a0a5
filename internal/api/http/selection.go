package apihttp

import (
	"errors"
	"net/http"

	billingapp "ixora-billpay/internal/billing/application"
	billing "ixora-billpay/internal/billing/domain"
)

// Selection is the bill selection as the HTTP surface sees it.
type Selection interface {
	Add(bill billing.SelectableBill) bool
	Remove(bill billing.SelectableBill)
	Clear()
	Has(bill billing.SelectableBill) bool
	View() billingapp.View
}

// SelectionHandler serves the bill selection.
type SelectionHandler struct {
	selection Selection
}

// NewSelectionHandler constructs a SelectionHandler.
func NewSelectionHandler(selection Selection) (*SelectionHandler, error) {
	if selection == nil {
		return nil, errors.New("selection handler: nil selection")
	}
	return &SelectionHandler{selection: selection}, nil
}

// ServeHTTP routes /api/v1/selection and /api/v1/selection/remove.
func (h *SelectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/selection" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.selection.View())
	case r.URL.Path == "/api/v1/selection" && r.Method == http.MethodPost:
		h.handleAdd(w, r)
	case r.URL.Path == "/api/v1/selection" && r.Method == http.MethodDelete:
		h.selection.Clear()
		writeJSON(w, http.StatusOK, h.selection.View())
	case r.URL.Path == "/api/v1/selection/remove" && r.Method == http.MethodPost:
		h.handleRemove(w, r)
	case r.URL.Path == "/api/v1/selection" || r.URL.Path == "/api/v1/selection/remove":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *SelectionHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	bill, ok := decodeBill(w, r)
	if !ok {
		return
	}
	added := h.selection.Add(bill)
	resp := map[string]any{"added": added, "selection": h.selection.View()}
	if !added {
		reason := "duplicate"
		if bill.Amount <= 0 {
			reason = "amount must be positive"
		}
		resp["reason"] = reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SelectionHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	bill, ok := decodeBill(w, r)
	if !ok {
		return
	}
	h.selection.Remove(bill)
	writeJSON(w, http.StatusOK, h.selection.View())
}

func decodeBill(w http.ResponseWriter, r *http.Request) (billing.SelectableBill, bool) {
	var bill billing.SelectableBill
	if !decodeJSON(w, r, &bill) {
		return bill, false
	}
	if bill.ID == "" {
		http.Error(w, billing.ErrEmptyBillID.Error(), http.StatusBadRequest)
		return bill, false
	}
	if !bill.Source.Valid() {
		http.Error(w, billing.ErrUnknownSource.Error(), http.StatusBadRequest)
		return bill, false
	}
	return bill, true
}
