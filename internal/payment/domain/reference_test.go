package payment

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsLikelyDuplicateReference(t *testing.T) {
	cases := map[string]bool{
		"IXO-20250101120000-0001":      false,
		"MBMB2025-20250101120000-9999": false,
		"bad-ref":                      true,
		"ixo-20250101120000-0001":      true,
		"IXO-2025010112000-0001":       true,
		"IXO-20250101120000-01":        true,
		"I-20250101120000-0001":        true,
		"":                             true,
	}
	for ref, want := range cases {
		if got := IsLikelyDuplicateReference(ref); got != want {
			t.Fatalf("%q: got %v want %v", ref, got, want)
		}
	}
}

func TestReferenceGenerator_FormatAndRollover(t *testing.T) {
	at := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	gen, err := NewReferenceGenerator("IXO", func() time.Time { return at })
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	first := gen.Next()
	if first != "IXO-20250101120000-0001" {
		t.Fatalf("first reference: %s", first)
	}
	if !IsWellFormedReference(first) {
		t.Fatalf("generated reference not well formed")
	}

	var last string
	for i := 0; i < 9998; i++ {
		last = gen.Next()
	}
	if !strings.HasSuffix(last, "-9999") {
		t.Fatalf("expected 9999, got %s", last)
	}
	if wrapped := gen.Next(); !strings.HasSuffix(wrapped, "-0000") {
		t.Fatalf("expected rollover to 0000, got %s", wrapped)
	}
}

func TestReferenceGenerator_RejectsBadPrefix(t *testing.T) {
	for _, prefix := range []string{"", "x", "ixo", "TOOLONGPREFIX", "IX-O"} {
		if _, err := NewReferenceGenerator(prefix, nil); !errors.Is(err, ErrInvalidPrefix) {
			t.Fatalf("prefix %q: expected ErrInvalidPrefix, got %v", prefix, err)
		}
	}
}

func TestStatusRecord_MergeKeepsTerminalStatus(t *testing.T) {
	rec := NewStatusRecord("IXO-20250101120000-0001")
	rec = rec.Merge(StatusRecord{Status: StatusSuccess, Amount: 75})
	rec = rec.Merge(StatusRecord{Status: StatusPending})
	if rec.Status != StatusSuccess {
		t.Fatalf("terminal status overwritten: %s", rec.Status)
	}
	if rec.Amount != 75 {
		t.Fatalf("amount lost: %v", rec.Amount)
	}

	rec = rec.WithReceipt(Receipt{ReceiptNumber: "R-1", Amount: 99})
	if rec.ReceiptNumber != "R-1" || rec.Amount != 75 || rec.Receipt == nil {
		t.Fatalf("receipt merge: %+v", rec)
	}
}
