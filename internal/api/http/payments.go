package apihttp

import (
	"errors"
	"net/http"
	"strings"

	"ixora-billpay/internal/audit"
	paymentapp "ixora-billpay/internal/payment/application"
	payment "ixora-billpay/internal/payment/domain"
	paymentif "ixora-billpay/internal/payment/interfaces"
)

// PaymentTracker drives status polling for one reference at a time.
type PaymentTracker interface {
	Track(reference string) error
	Retry() error
	Snapshot() paymentapp.Snapshot
	Reference() string
}

// PaymentsHandler serves payment status endpoints.
type PaymentsHandler struct {
	tracker     PaymentTracker
	auditLogger audit.Logger
}

// NewPaymentsHandler constructs a PaymentsHandler. auditLogger may be nil.
func NewPaymentsHandler(tracker PaymentTracker, auditLogger audit.Logger) (*PaymentsHandler, error) {
	if tracker == nil {
		return nil, errors.New("payments handler: nil tracker")
	}
	return &PaymentsHandler{tracker: tracker, auditLogger: auditLogger}, nil
}

type paymentView struct {
	paymentapp.Snapshot
	WellFormed bool `json:"wellFormed"`
}

// ServeHTTP routes /api/v1/payments/{reference}[/track|/retry|/receipt.pdf|/receipt.xlsx].
func (h *PaymentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/api/v1/payments/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/payments/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	reference := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, reference)
	case len(parts) == 2 && parts[1] == "track" && r.Method == http.MethodPost:
		h.handleTrack(w, r, reference)
	case len(parts) == 2 && parts[1] == "retry" && r.Method == http.MethodPost:
		h.handleRetry(w, r, reference)
	case len(parts) == 2 && parts[1] == "receipt.pdf" && r.Method == http.MethodGet:
		h.handleReceipt(w, reference, "application/pdf", paymentif.BuildReceiptPDF)
	case len(parts) == 2 && parts[1] == "receipt.xlsx" && r.Method == http.MethodGet:
		h.handleReceipt(w, reference, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", paymentif.BuildReceiptXLSX)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PaymentsHandler) current(w http.ResponseWriter, reference string) (paymentapp.Snapshot, bool) {
	if h.tracker.Reference() != reference {
		http.Error(w, "reference is not being tracked", http.StatusNotFound)
		return paymentapp.Snapshot{}, false
	}
	return h.tracker.Snapshot(), true
}

func (h *PaymentsHandler) respond(w http.ResponseWriter, status int, snap paymentapp.Snapshot) {
	writeJSON(w, status, paymentView{
		Snapshot:   snap,
		WellFormed: payment.IsWellFormedReference(snap.Reference),
	})
}

func (h *PaymentsHandler) handleGet(w http.ResponseWriter, reference string) {
	snap, ok := h.current(w, reference)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, snap)
}

func (h *PaymentsHandler) handleTrack(w http.ResponseWriter, r *http.Request, reference string) {
	if err := h.tracker.Track(reference); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, http.StatusAccepted, h.tracker.Snapshot())
	logAudit(h.auditLogger, r, "payment.track", reference, map[string]any{
		"likely_duplicate": payment.IsLikelyDuplicateReference(reference),
	})
}

func (h *PaymentsHandler) handleRetry(w http.ResponseWriter, r *http.Request, reference string) {
	if _, ok := h.current(w, reference); !ok {
		return
	}
	if err := h.tracker.Retry(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.respond(w, http.StatusAccepted, h.tracker.Snapshot())
	logAudit(h.auditLogger, r, "payment.retry", reference, nil)
}

func (h *PaymentsHandler) handleReceipt(w http.ResponseWriter, reference, contentType string, build func(payment.StatusRecord) ([]byte, error)) {
	snap, ok := h.current(w, reference)
	if !ok {
		return
	}
	data, err := build(snap.Record)
	if errors.Is(err, paymentif.ErrReceiptUnavailable) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "render receipt failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}
