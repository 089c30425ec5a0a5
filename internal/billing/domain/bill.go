package billing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Source tags which billing module a bill came from.
type Source string

const (
	SourceAssessment Source = "assessment"
	SourceBooth      Source = "booth"
	SourceMisc       Source = "misc"
	SourceCompound   Source = "compound"
)

// Sources lists every billing module in search order.
var Sources = []Source{SourceAssessment, SourceBooth, SourceMisc, SourceCompound}

// ParseSource normalizes a source name.
func ParseSource(value string) (Source, error) {
	source := Source(strings.ToLower(strings.TrimSpace(value)))
	if !source.Valid() {
		return "", ErrUnknownSource
	}
	return source, nil
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceAssessment, SourceBooth, SourceMisc, SourceCompound:
		return true
	}
	return false
}

// BillID is a source-local identifier. The backend sends it as a string or
// a number; both decode to the same textual form.
type BillID string

// UnmarshalJSON accepts JSON strings and numbers.
func (id *BillID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = BillID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = BillID(n.String())
	return nil
}

// String returns the id text.
func (id BillID) String() string { return string(id) }

// BillMeta carries provenance the store passes through untouched.
type BillMeta struct {
	ItemType   string          `json:"itemType,omitempty"`
	AccountNo  string          `json:"accountNo,omitempty"`
	CompoundNo string          `json:"compoundNo,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// SelectableBill is a single payable line item a citizen can pick.
type SelectableBill struct {
	ID          BillID    `json:"id" validate:"required"`
	BillNumber  string    `json:"billNumber"`
	Amount      float64   `json:"amount" validate:"gte=0"`
	DueDate     string    `json:"dueDate"`
	Description string    `json:"description,omitempty"`
	Source      Source    `json:"source" validate:"required,oneof=assessment booth misc compound"`
	Meta        *BillMeta `json:"meta,omitempty"`
}

const (
	keySeparator     = "|"
	blankMarker      = "_blank_"
	descriptionChars = 12
)

// Key returns the composite identity used for deduplication. Bills with a
// bill number are keyed on it; blank-numbered bills fall back to a
// fingerprint of amount, due date and a description prefix so distinct
// blank bills sharing an id do not collide.
func Key(bill SelectableBill) string {
	prefix := string(bill.Source) + keySeparator + string(bill.ID) + keySeparator
	if number := strings.TrimSpace(bill.BillNumber); number != "" {
		return prefix + number
	}
	return prefix + blankMarker +
		strconv.FormatFloat(bill.Amount, 'f', -1, 64) + "_" +
		bill.DueDate + "_" +
		descriptionFingerprint(bill.Description)
}

func descriptionFingerprint(description string) string {
	runes := []rune(description)
	if len(runes) > descriptionChars {
		runes = runes[:descriptionChars]
	}
	return strings.ReplaceAll(string(runes), " ", "_")
}
