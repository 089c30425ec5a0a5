package application

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	billing "ixora-billpay/internal/billing/domain"
	"ixora-billpay/internal/portalapi"
)

// ErrMalformedRecord is returned when a backend bill record cannot be
// mapped onto a SelectableBill.
var ErrMalformedRecord = errors.New("billing: malformed bill record")

var validate = validator.New()

// Normalizer maps one raw backend record into a SelectableBill.
type Normalizer func(raw json.RawMessage) (billing.SelectableBill, error)

var normalizers = map[billing.Source]Normalizer{
	billing.SourceAssessment: NormalizeAssessment,
	billing.SourceBooth:      NormalizeBooth,
	billing.SourceMisc:       NormalizeMisc,
	billing.SourceCompound:   NormalizeCompound,
}

// Normalize maps raw into a bill of the given source.
func Normalize(source billing.Source, raw json.RawMessage) (billing.SelectableBill, error) {
	fn, ok := normalizers[source]
	if !ok {
		return billing.SelectableBill{}, billing.ErrUnknownSource
	}
	return fn(raw)
}

// NormalizeAssessment maps an assessment tax record.
func NormalizeAssessment(raw json.RawMessage) (billing.SelectableBill, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return billing.SelectableBill{}, err
	}
	meta := &billing.BillMeta{
		ItemType:  rec.Text("item_type", "itemType", "jenis"),
		AccountNo: rec.Text("account_no", "accountNo", "no_akaun"),
	}
	if meta.ItemType == "" {
		meta.ItemType = "assessment"
	}
	return buildBill(rec, billing.SourceAssessment, meta, raw)
}

// NormalizeBooth maps a booth rental record.
func NormalizeBooth(raw json.RawMessage) (billing.SelectableBill, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return billing.SelectableBill{}, err
	}
	meta := &billing.BillMeta{
		ItemType:  rec.Text("item_type", "itemType"),
		AccountNo: rec.Text("rental_no", "rentalNo", "account_no", "accountNo", "no_sewa"),
	}
	if meta.ItemType == "" {
		meta.ItemType = "booth"
	}
	return buildBill(rec, billing.SourceBooth, meta, raw)
}

// NormalizeMisc maps a miscellaneous bill record.
func NormalizeMisc(raw json.RawMessage) (billing.SelectableBill, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return billing.SelectableBill{}, err
	}
	meta := &billing.BillMeta{
		ItemType:  rec.Text("bill_type", "billType", "item_type", "itemType"),
		AccountNo: rec.Text("account_no", "accountNo"),
	}
	return buildBill(rec, billing.SourceMisc, meta, raw)
}

// NormalizeCompound maps a compound (fine) record. Compounds usually carry
// no bill number; the compound number stands in for it.
func NormalizeCompound(raw json.RawMessage) (billing.SelectableBill, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return billing.SelectableBill{}, err
	}
	meta := &billing.BillMeta{
		ItemType:   "compound",
		CompoundNo: rec.Text("compound_no", "compoundNo", "no_kompaun"),
	}
	if _, ok := rec.First("bill_no", "billNo", "billNumber", "no_bil"); !ok {
		rec["bill_no"] = meta.CompoundNo
	}
	return buildBill(rec, billing.SourceCompound, meta, raw)
}

func decodeRecord(raw json.RawMessage) (portalapi.Record, error) {
	rec, err := portalapi.DecodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return rec, nil
}

func buildBill(r portalapi.Record, source billing.Source, meta *billing.BillMeta, raw json.RawMessage) (billing.SelectableBill, error) {
	id := r.Text("id", "bill_id", "billId")
	if id == "" {
		return billing.SelectableBill{}, fmt.Errorf("%w: %v", ErrMalformedRecord, billing.ErrEmptyBillID)
	}
	amount, err := r.Float("amount", "amount_due", "amountDue", "total", "jumlah")
	if err != nil {
		return billing.SelectableBill{}, fmt.Errorf("%w: %v: %v", ErrMalformedRecord, billing.ErrInvalidAmount, err)
	}
	meta.Raw = append(json.RawMessage(nil), raw...)
	bill := billing.SelectableBill{
		ID:          billing.BillID(id),
		BillNumber:  r.Text("bill_no", "billNo", "billNumber", "no_bil"),
		Amount:      amount,
		DueDate:     r.Text("due_date", "dueDate", "tarikh_akhir"),
		Description: r.Text("description", "desc", "keterangan"),
		Source:      source,
		Meta:        meta,
	}
	if err := validate.Struct(bill); err != nil {
		return billing.SelectableBill{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return bill, nil
}
