package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestNotifier(url string) *Notifier {
	return New(url, "webhook-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotify_DoesNotBlockOnSlowEndpoint(t *testing.T) {
	t.Parallel()

	// A misbehaving endpoint holds every delivery attempt open and then
	// fails it, which would otherwise stall the caller through retries.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL)

	start := time.Now()
	n.Notify(context.Background(), Event{Type: EventRefreshReuse, UserID: "user-1"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Notify blocked for %v; delivery must run detached from the caller", elapsed)
	}
}

func TestNotify_DeliversSignedEvent(t *testing.T) {
	t.Parallel()

	type received struct {
		signature  string
		timestamp  string
		deliveryID string
		body       []byte
	}
	got := make(chan received, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			signature:  r.Header.Get(HeaderSignature),
			timestamp:  r.Header.Get(HeaderTimestamp),
			deliveryID: r.Header.Get(HeaderDeliveryID),
			body:       body,
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL)
	n.Notify(context.Background(), Event{
		Type:     EventFamilyRevoked,
		UserID:   "user-1",
		FamilyID: "family-1",
	})

	select {
	case d := <-got:
		if d.signature == "" || d.timestamp == "" || d.deliveryID == "" {
			t.Errorf("Delivery missing headers: %+v", d)
		}
		var event Event
		if err := json.Unmarshal(d.body, &event); err != nil {
			t.Fatalf("Payload not valid JSON: %v", err)
		}
		if event.Type != EventFamilyRevoked || event.FamilyID != "family-1" {
			t.Errorf("Delivered event = %+v", event)
		}
		if event.OccurredAt.IsZero() {
			t.Error("OccurredAt should be stamped before delivery")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Event was never delivered")
	}
}

func TestNotify_DisabledWithoutURL(t *testing.T) {
	t.Parallel()

	n := newTestNotifier("")
	if n.Enabled() {
		t.Error("Notifier with empty URL should report disabled")
	}
	// Must be a silent no-op.
	n.Notify(context.Background(), Event{Type: EventUserBlocked})
}
