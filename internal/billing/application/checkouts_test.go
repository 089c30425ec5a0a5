package application

import (
	"context"
	"testing"

	billing "ixora-billpay/internal/billing/domain"
	"ixora-billpay/internal/eventhub"
)

func settledStore(t *testing.T, bills ...billing.SelectableBill) (*Store, *eventhub.Hub, *CheckoutLedger) {
	t.Helper()
	hub := eventhub.New()
	store := NewStore(nil)
	store.Hydrate(context.Background())
	for _, bill := range bills {
		if !store.Add(bill) {
			t.Fatalf("add %+v rejected", bill)
		}
	}
	ledger := NewCheckoutLedger(0)
	eventhub.Subscribe(hub, SettlePaidBills(store, ledger, nil))
	return store, hub, ledger
}

func resolved(reference, status string, bills ...billing.SelectableBill) eventhub.PaymentResolved {
	return eventhub.PaymentResolved{Reference: reference, Phase: "resolved", Status: status, Bills: bills}
}

func TestSettlePaidBills_KeepsBillsAddedAfterCheckout(t *testing.T) {
	a, b, c := assessment("1", "A1", 10), assessment("2", "A2", 20), assessment("3", "A3", 30)
	store, hub, ledger := settledStore(t, a, b)
	ledger.Record("IXO-20250101120000-0001", store.Bills())
	store.Add(c)

	if err := hub.Publish(context.Background(), resolved("IXO-20250101120000-0001", "success")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	bills := store.Bills()
	if len(bills) != 1 || bills[0].ID != "3" || store.Total() != 30 {
		t.Fatalf("expected only the post-checkout bill to remain, got %+v", bills)
	}
}

func TestSettlePaidBills_UnknownReferenceUsesPaidBills(t *testing.T) {
	a, b := assessment("1", "A1", 10), assessment("2", "A2", 20)
	store, hub, _ := settledStore(t, a, b)

	_ = hub.Publish(context.Background(), resolved("IXO-20240101120000-0042", "success"))
	if store.Count() != 2 {
		t.Fatalf("old payment without bills removed selection: %d left", store.Count())
	}

	_ = hub.Publish(context.Background(), resolved("IXO-20240101120000-0042", "success", a))
	bills := store.Bills()
	if len(bills) != 1 || bills[0].ID != "2" {
		t.Fatalf("expected only the paid bill removed, got %+v", bills)
	}
}

func TestSettlePaidBills_IgnoresUnpaidOutcomes(t *testing.T) {
	a := assessment("1", "A1", 10)
	store, hub, ledger := settledStore(t, a)
	ledger.Record("IXO-20250101120000-0001", store.Bills())

	_ = hub.Publish(context.Background(), resolved("IXO-20250101120000-0001", "failed", a))
	_ = hub.Publish(context.Background(), eventhub.PaymentResolved{
		Reference: "IXO-20250101120000-0001", Phase: "exhausted", Status: "pending", Bills: []billing.SelectableBill{a},
	})
	if store.Count() != 1 {
		t.Fatalf("unpaid outcome changed selection: %d", store.Count())
	}
	if _, ok := ledger.Take("IXO-20250101120000-0001"); !ok {
		t.Fatalf("unpaid outcome consumed checkout record")
	}
}

func TestCheckoutLedger_TakeForgets(t *testing.T) {
	ledger := NewCheckoutLedger(0)
	ledger.Record("", []billing.SelectableBill{assessment("1", "A1", 10)})
	ledger.Record("IXO-20250101120000-0001", nil)
	if _, ok := ledger.Take("IXO-20250101120000-0001"); ok {
		t.Fatalf("empty checkout recorded")
	}

	bills := []billing.SelectableBill{assessment("1", "A1", 10)}
	ledger.Record("IXO-20250101120000-0002", bills)
	bills[0].ID = "mutated"
	got, ok := ledger.Take("IXO-20250101120000-0002")
	if !ok || len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("unexpected take: %+v %v", got, ok)
	}
	if _, ok := ledger.Take("IXO-20250101120000-0002"); ok {
		t.Fatalf("take did not forget reference")
	}
}
