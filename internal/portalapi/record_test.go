package portalapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_LookupFallbacks(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{
		"bill_no": null,
		"billNo": " A-1 ",
		"id": 12345678901234567890,
		"paid": true,
		"amount": "RM 1,250.40",
		"gateway": {"orderid": "O-1"},
		"items": [1, 2]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "A-1", rec.Text("bill_no", "billNo"), "null values are skipped")
	assert.Equal(t, "12345678901234567890", rec.Text("id"), "large ids keep every digit")
	assert.Equal(t, "true", rec.Text("paid"))
	assert.Empty(t, rec.Text("missing"))

	amount, err := rec.Float("amount_due", "amount")
	require.NoError(t, err)
	assert.InDelta(t, 1250.40, amount, 1e-9)

	_, err = rec.Float("missing")
	assert.ErrorIs(t, err, ErrNoValue)
	_, err = rec.Float("gateway")
	assert.ErrorIs(t, err, ErrNoValue)

	gw, ok := rec.Object("gateway")
	require.True(t, ok)
	assert.Equal(t, "O-1", gw.Text("orderid"))
	_, ok = rec.Object("items")
	assert.False(t, ok)

	raw, ok := rec.Raw("items")
	require.True(t, ok)
	assert.JSONEq(t, `[1,2]`, string(raw))
}

func TestDecodeRecord_RejectsNonObjects(t *testing.T) {
	_, err := DecodeRecord([]byte(`null`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = DecodeRecord([]byte(`[1]`))
	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, err, &typeErr)

	_, err = DecodeRecord([]byte(`{"a":`))
	assert.Error(t, err)
}
