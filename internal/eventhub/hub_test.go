package eventhub

import (
	"context"
	"errors"
	"testing"
)

func TestHub_TypedSubscribeAndUnsubscribe(t *testing.T) {
	hub := New()
	var got []string
	unsubscribe := Subscribe(hub, func(_ context.Context, evt LanguageChanged) error {
		got = append(got, evt.Language)
		return nil
	})

	if err := hub.Publish(context.Background(), LanguageChanged{Language: "ms"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := hub.Publish(context.Background(), &LanguageChanged{Language: "en"}); err != nil {
		t.Fatalf("publish pointer: %v", err)
	}
	unsubscribe()
	unsubscribe()
	if err := hub.Publish(context.Background(), LanguageChanged{Language: "zh"}); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}

	if len(got) != 2 || got[0] != "ms" || got[1] != "en" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
	if Subscribers[LanguageChanged](hub) != 0 {
		t.Fatalf("expected no subscribers left")
	}
}

func TestHub_UnsubscribeRemovesOnlyOwnHandler(t *testing.T) {
	hub := New()
	var first, second int
	unsubFirst := Subscribe(hub, func(context.Context, PullToRefresh) error { first++; return nil })
	Subscribe(hub, func(context.Context, PullToRefresh) error { second++; return nil })

	unsubFirst()
	_ = hub.Publish(context.Background(), PullToRefresh{Scope: "bills"})

	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d", first, second)
	}
}

func TestHub_PublishReturnsFirstErrorAfterAllHandlers(t *testing.T) {
	hub := New()
	boom := errors.New("boom")
	calls := 0
	Subscribe(hub, func(context.Context, PullToRefresh) error { calls++; return boom })
	Subscribe(hub, func(context.Context, PullToRefresh) error { calls++; return errors.New("later") })

	err := hub.Publish(context.Background(), PullToRefresh{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected first error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestHub_NilEvent(t *testing.T) {
	if err := New().Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
	var hub *Hub
	if err := hub.Publish(context.Background(), PullToRefresh{}); err != nil {
		t.Fatalf("nil hub publish should be a no-op, got %v", err)
	}
}
