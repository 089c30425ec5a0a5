package payment

import (
	"strings"
	"time"

	billing "ixora-billpay/internal/billing/domain"
)

// Status is the payment gateway outcome as reported by the backend.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ParseStatus normalizes a wire status value.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusSuccess, StatusFailed:
		return status, nil
	}
	return "", ErrUnknownStatus
}

// IsTerminal reports whether polling should stop on this status.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// GatewayInfo identifies the gateway transaction behind a payment.
type GatewayInfo struct {
	Provider      string `json:"provider,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Channel       string `json:"channel,omitempty"`
}

// ReceiptItem is one paid line on a receipt.
type ReceiptItem struct {
	Description string  `json:"description"`
	BillNumber  string  `json:"billNumber,omitempty"`
	Amount      float64 `json:"amount"`
}

// Receipt is the official receipt issued after a successful payment.
type Receipt struct {
	ReceiptNumber string        `json:"receiptNumber"`
	Reference     string        `json:"reference"`
	PayerName     string        `json:"payerName,omitempty"`
	Amount        float64       `json:"amount"`
	PaidAt        time.Time     `json:"paidAt,omitempty"`
	Items         []ReceiptItem `json:"items,omitempty"`
}

// StatusRecord accumulates what is known about one payment reference.
type StatusRecord struct {
	Reference     string                   `json:"reference"`
	Status        Status                   `json:"status"`
	Amount        float64                  `json:"amount,omitempty"`
	PaidAt        time.Time                `json:"paidAt,omitempty"`
	ReceiptNumber string                   `json:"receiptNumber,omitempty"`
	Bills         []billing.SelectableBill `json:"bills,omitempty"`
	Gateway       *GatewayInfo             `json:"gateway,omitempty"`
	Receipt       *Receipt                 `json:"receipt,omitempty"`
}

// NewStatusRecord starts a pending record for reference.
func NewStatusRecord(reference string) StatusRecord {
	return StatusRecord{Reference: reference, Status: StatusPending}
}

// Merge folds a newer observation into r. Status only leaves pending;
// once terminal it is kept. Empty fields in update never erase known values.
func (r StatusRecord) Merge(update StatusRecord) StatusRecord {
	if !r.Status.IsTerminal() && update.Status != "" {
		r.Status = update.Status
	}
	if update.Amount != 0 {
		r.Amount = update.Amount
	}
	if !update.PaidAt.IsZero() {
		r.PaidAt = update.PaidAt
	}
	if update.ReceiptNumber != "" {
		r.ReceiptNumber = update.ReceiptNumber
	}
	if len(update.Bills) > 0 {
		r.Bills = append([]billing.SelectableBill(nil), update.Bills...)
	}
	if update.Gateway != nil {
		gw := *update.Gateway
		r.Gateway = &gw
	}
	return r
}

// WithReceipt merges receipt fields into r.
func (r StatusRecord) WithReceipt(receipt Receipt) StatusRecord {
	rc := receipt
	rc.Items = append([]ReceiptItem(nil), receipt.Items...)
	r.Receipt = &rc
	if receipt.ReceiptNumber != "" {
		r.ReceiptNumber = receipt.ReceiptNumber
	}
	if r.Amount == 0 {
		r.Amount = receipt.Amount
	}
	if r.PaidAt.IsZero() {
		r.PaidAt = receipt.PaidAt
	}
	return r
}
