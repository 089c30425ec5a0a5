package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ixora-billpay/internal/eventhub"
)

// EventPublisher fans UI signals out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// EventsHandler turns UI signals into hub events.
type EventsHandler struct {
	publisher EventPublisher
	now       func() time.Time
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(publisher EventPublisher) (*EventsHandler, error) {
	if publisher == nil {
		return nil, errors.New("events handler: nil publisher")
	}
	return &EventsHandler{publisher: publisher, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ServeHTTP handles POST /api/v1/events/refresh and /api/v1/events/language.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/events/refresh":
		var req struct {
			Scope string `json:"scope"`
		}
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		h.publish(w, r, eventhub.PullToRefresh{Scope: req.Scope, OccurredAt: h.now()})
	case "/api/v1/events/language":
		var req struct {
			Language string `json:"language"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		language := strings.TrimSpace(req.Language)
		if language == "" {
			http.Error(w, "language is required", http.StatusBadRequest)
			return
		}
		h.publish(w, r, eventhub.LanguageChanged{Language: language, OccurredAt: h.now()})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *EventsHandler) publish(w http.ResponseWriter, r *http.Request, event any) {
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
