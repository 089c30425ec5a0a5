package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"ixora-billpay/internal/audit"
	"ixora-billpay/internal/auth"
	billingapp "ixora-billpay/internal/billing/application"
	billing "ixora-billpay/internal/billing/domain"
)

// ReferenceSource issues checkout references.
type ReferenceSource interface {
	Next() string
}

// SelectionViewer reads the current selection.
type SelectionViewer interface {
	View() billingapp.View
}

// CheckoutRecorder remembers the bills a checkout reference covers.
type CheckoutRecorder interface {
	Record(reference string, bills []billing.SelectableBill)
}

// CheckoutHandler starts a checkout for the current selection.
type CheckoutHandler struct {
	selection   SelectionViewer
	references  ReferenceSource
	recorder    CheckoutRecorder
	auditLogger audit.Logger
}

// NewCheckoutHandler constructs a CheckoutHandler. recorder and auditLogger
// may be nil.
func NewCheckoutHandler(selection SelectionViewer, references ReferenceSource, recorder CheckoutRecorder, auditLogger audit.Logger) (*CheckoutHandler, error) {
	if selection == nil {
		return nil, errors.New("checkout handler: nil selection")
	}
	if references == nil {
		return nil, errors.New("checkout handler: nil reference source")
	}
	return &CheckoutHandler{
		selection:   selection,
		references:  references,
		recorder:    recorder,
		auditLogger: auditLogger,
	}, nil
}

// ServeHTTP handles POST /api/v1/checkout.
func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	view := h.selection.View()
	if view.Count == 0 {
		http.Error(w, "selection is empty", http.StatusConflict)
		return
	}
	reference := h.references.Next()
	if h.recorder != nil {
		h.recorder.Record(reference, view.Bills)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"reference": reference,
		"bills":     view.Bills,
		"total":     view.Total,
		"count":     view.Count,
	})
	logAudit(h.auditLogger, r, "payment.checkout", reference, map[string]any{"count": view.Count, "total": view.Total})
}

func logAudit(logger audit.Logger, r *http.Request, action, reference string, meta map[string]any) {
	if logger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = logger.Log(r.Context(), audit.Entry{
		Actor:     auth.SubjectFromContext(r.Context()),
		Action:    action,
		Reference: reference,
		Metadata:  payload,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}
