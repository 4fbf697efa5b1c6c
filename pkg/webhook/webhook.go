package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/storage"
	"github.com/cuemby/wharf/pkg/types"
)

// SignatureHeader carries "sha256=<hex hmac of body>"
const SignatureHeader = "X-Wharf-Signature"

// EventHeader carries the event name
const EventHeader = "X-Wharf-Event"

// Store is the storage subset the dispatcher reads
type Store interface {
	GetWebhook(id string) (*types.Webhook, error)
	GetWebhookByRelease(releaseID string) (*types.Webhook, error)
}

// Payload is the JSON body POSTed to a webhook URL
type Payload struct {
	Event     string    `json:"event"`
	WebhookID string    `json:"webhookId"`
	ReleaseID string    `json:"releaseId"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher delivers release events to registered webhooks
type Dispatcher struct {
	store  Store
	Client *http.Client
}

// NewDispatcher creates a dispatcher with a 10 second HTTP timeout
func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{
		store:  store,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// FindByRelease returns the release's webhook, or nil when it has none
func (d *Dispatcher) FindByRelease(releaseID string) (*types.Webhook, error) {
	wh, err := d.store.GetWebhookByRelease(releaseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up webhook: %w", err)
	}
	return wh, nil
}

// Trigger POSTs event to the webhook. Webhooks not subscribed to event are skipped.
func (d *Dispatcher) Trigger(ctx context.Context, webhookID, event string) error {
	wh, err := d.store.GetWebhook(webhookID)
	if err != nil {
		return fmt.Errorf("failed to get webhook: %w", err)
	}
	if !wh.Wants(event) {
		metrics.WebhookDeliveries.WithLabelValues(event, "skipped").Inc()
		return nil
	}

	body, err := json.Marshal(Payload{
		Event:     event,
		WebhookID: wh.ID,
		ReleaseID: wh.Release,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)
	if wh.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, wh.Secret))
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.WebhookDeliveries.WithLabelValues(event, "rejected").Inc()
		return fmt.Errorf("webhook %s returned %s", wh.ID, resp.Status)
	}

	metrics.WebhookDeliveries.WithLabelValues(event, "delivered").Inc()
	logger := log.WithComponent("webhook")
	logger.Debug().
		Str("webhook_id", wh.ID).
		Str("event", event).
		Msg("Webhook delivered")
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature produced by Sign
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
