package application

import (
	"encoding/json"
	"fmt"
	"time"

	billingapp "ixora-billpay/internal/billing/application"
	billing "ixora-billpay/internal/billing/domain"
	payment "ixora-billpay/internal/payment/domain"
	"ixora-billpay/internal/portalapi"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NormalizeStatus maps a status document into a StatusRecord. The status
// field is required; optional fields that are present but unparsable are
// reported rather than dropped. A malformed bills list does not hide the
// status: the record is returned without bills together with an error
// matching both ErrMalformedBills and ErrMalformedPayload.
func NormalizeStatus(raw json.RawMessage) (payment.StatusRecord, error) {
	rec, err := portalapi.DecodeRecord(raw)
	if err != nil {
		return payment.StatusRecord{}, fmt.Errorf("%w: %v", payment.ErrMalformedPayload, err)
	}
	status, err := payment.ParseStatus(rec.Text("status", "payment_status", "paymentStatus"))
	if err != nil {
		return payment.StatusRecord{}, fmt.Errorf("%w: status %q", err, rec.Text("status", "payment_status", "paymentStatus"))
	}

	out := payment.StatusRecord{
		Reference:     rec.Text("reference", "ref", "reference_no", "referenceNo"),
		Status:        status,
		ReceiptNumber: rec.Text("receiptNo", "receipt_no", "receiptNumber"),
	}
	if out.Amount, err = optionalAmount(rec, "amount", "total", "amount_paid", "amountPaid"); err != nil {
		return payment.StatusRecord{}, err
	}
	if out.PaidAt, err = optionalTime(rec, "paidAt", "paid_at"); err != nil {
		return payment.StatusRecord{}, err
	}
	if gw, ok := rec.Object("gateway"); ok {
		info := payment.GatewayInfo{
			Provider:      gw.Text("provider", "name"),
			OrderID:       gw.Text("orderid", "orderId", "order_id"),
			TransactionID: gw.Text("transactionId", "transaction_id", "tranID"),
			Channel:       gw.Text("channel", "method"),
		}
		if info != (payment.GatewayInfo{}) {
			out.Gateway = &info
		}
	}
	bills, err := statusBills(rec)
	if err != nil {
		return out, fmt.Errorf("%w: %w", payment.ErrMalformedBills, err)
	}
	out.Bills = bills
	return out, nil
}

// NormalizeReceipt maps a receipt document.
func NormalizeReceipt(raw json.RawMessage) (payment.Receipt, error) {
	rec, err := portalapi.DecodeRecord(raw)
	if err != nil {
		return payment.Receipt{}, fmt.Errorf("%w: %v", payment.ErrMalformedPayload, err)
	}
	out := payment.Receipt{
		ReceiptNumber: rec.Text("receiptNo", "receipt_no", "receiptNumber", "no_resit"),
		Reference:     rec.Text("reference", "ref", "reference_no", "referenceNo"),
		PayerName:     rec.Text("payerName", "payer_name", "name", "nama"),
	}
	if out.ReceiptNumber == "" {
		return payment.Receipt{}, fmt.Errorf("%w: receipt number missing", payment.ErrMalformedPayload)
	}
	if out.Amount, err = optionalAmount(rec, "amount", "total", "amount_paid", "amountPaid"); err != nil {
		return payment.Receipt{}, err
	}
	if out.PaidAt, err = optionalTime(rec, "paidAt", "paid_at", "date"); err != nil {
		return payment.Receipt{}, err
	}

	items, ok := rec.First("items", "lines", "bills")
	if !ok {
		return out, nil
	}
	list, ok := items.([]any)
	if !ok {
		return payment.Receipt{}, fmt.Errorf("%w: items is not a list", payment.ErrMalformedPayload)
	}
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return payment.Receipt{}, fmt.Errorf("%w: item %d is not an object", payment.ErrMalformedPayload, i)
		}
		item := portalapi.Record(obj)
		amount, err := item.Float("amount", "total", "jumlah")
		if err != nil {
			return payment.Receipt{}, fmt.Errorf("%w: item %d amount: %v", payment.ErrMalformedPayload, i, err)
		}
		out.Items = append(out.Items, payment.ReceiptItem{
			Description: item.Text("description", "desc", "keterangan"),
			BillNumber:  item.Text("billNumber", "bill_no", "billNo", "no_bil"),
			Amount:      amount,
		})
	}
	return out, nil
}

func optionalAmount(rec portalapi.Record, keys ...string) (float64, error) {
	if _, ok := rec.First(keys...); !ok {
		return 0, nil
	}
	amount, err := rec.Float(keys...)
	if err != nil {
		return 0, fmt.Errorf("%w: amount: %v", payment.ErrMalformedPayload, err)
	}
	return amount, nil
}

func optionalTime(rec portalapi.Record, keys ...string) (time.Time, error) {
	value := rec.Text(keys...)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: time %q", payment.ErrMalformedPayload, value)
}

// statusBills normalizes the bills echoed back with a status document.
// Each entry names its module in "source" or "module".
func statusBills(rec portalapi.Record) ([]billing.SelectableBill, error) {
	value, ok := rec.First("bills", "items")
	if !ok {
		return nil, nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: bills is not a list", payment.ErrMalformedPayload)
	}
	bills := make([]billing.SelectableBill, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: bill %d is not an object", payment.ErrMalformedPayload, i)
		}
		item := portalapi.Record(obj)
		source, err := billing.ParseSource(item.Text("source", "module"))
		if err != nil {
			return nil, fmt.Errorf("%w: bill %d: %v", payment.ErrMalformedPayload, i, err)
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: bill %d: %v", payment.ErrMalformedPayload, i, err)
		}
		bill, err := billingapp.Normalize(source, data)
		if err != nil {
			return nil, fmt.Errorf("%w: bill %d: %v", payment.ErrMalformedPayload, i, err)
		}
		bills = append(bills, bill)
	}
	return bills, nil
}
