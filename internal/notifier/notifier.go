package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Security event types delivered to the configured webhook.
const (
	EventRefreshReuse  = "auth.refresh_reuse_detected"
	EventFamilyRevoked = "auth.session_family_revoked"
	EventUserBlocked   = "admin.user_blocked"
)

// Header names for event deliveries.
const (
	HeaderSignature  = "X-AnyLLM-Signature"
	HeaderTimestamp  = "X-AnyLLM-Timestamp"
	HeaderDeliveryID = "X-AnyLLM-Delivery-Id"
)

// HTTP client timeouts.
const (
	clientTimeout         = 10 * time.Second
	dialTimeout           = 5 * time.Second
	tlsHandshakeTimeout   = 5 * time.Second
	responseHeaderTimeout = 5 * time.Second

	maxAttempts = 3
	retryDelay  = 500 * time.Millisecond

	// deliveryTimeout bounds one event's delivery including retries.
	deliveryTimeout = 35 * time.Second
)

// Event is one security event payload.
type Event struct {
	Type       string         `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	FamilyID   string         `json:"family_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier posts signed security events to a webhook endpoint.
// A Notifier with an empty URL is valid and drops all events.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// New creates a Notifier. An empty url disables delivery.
func New(url, secret string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:    url,
		secret: secret,
		client: newHTTPClient(),
		logger: logger,
	}
}

// Enabled reports whether events will actually be delivered.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Notify dispatches one event for delivery and returns immediately.
// Delivery runs detached from the caller with its own deadline, so the
// request path that raised the event (refresh reuse, admin block) never
// waits on the webhook endpoint. Failures are logged, never propagated.
func (n *Notifier) Notify(_ context.Context, event Event) {
	if !n.Enabled() {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal security event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
		return
	}

	go n.deliverWithRetry(event.Type, payload, uuid.New().String())
}

// deliverWithRetry attempts delivery with bounded retries. Runs on its
// own goroutine with a detached context; the triggering request may be
// long gone by the time the last attempt finishes.
func (n *Notifier) deliverWithRetry(eventType string, payload []byte, deliveryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay * time.Duration(attempt-1)):
			}
		}

		if lastErr = n.deliver(ctx, payload, deliveryID); lastErr == nil {
			return
		}
	}

	n.logger.Error("security event delivery failed",
		slog.String("type", eventType),
		slog.String("delivery_id", deliveryID),
		slog.Int("attempts", maxAttempts),
		slog.String("error", lastErr.Error()))
}

func (n *Notifier) deliver(ctx context.Context, payload []byte, deliveryID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	timestamp := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", timestamp))
	req.Header.Set(HeaderDeliveryID, deliveryID)
	req.Header.Set("User-Agent", "AnyLLM-Gateway/1.0")
	if n.secret != "" {
		req.Header.Set(HeaderSignature, GenerateSignature(n.secret, timestamp, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

// newHTTPClient creates an HTTP client configured for event delivery.
// It has conservative timeouts and does not follow redirects.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		// Don't follow redirects - security measure
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
