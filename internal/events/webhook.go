package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookForwarder POSTs bus events as JSON to an outbound URL.
type WebhookForwarder struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewWebhookForwarder(url string, timeout time.Duration, log *zap.Logger) *WebhookForwarder {
	return &WebhookForwarder{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (f *WebhookForwarder) Forward(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", event.Type)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward %s: %w", event.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forward %s: webhook returned %d", event.Type, resp.StatusCode)
	}
	return nil
}

// Handler adapts Forward to a Subscriber callback; failures are logged.
func (f *WebhookForwarder) Handler(ctx context.Context) func(Event) {
	return func(event Event) {
		if err := f.Forward(ctx, event); err != nil {
			f.log.Warn("failed to forward event", zap.String("type", event.Type), zap.Error(err))
			return
		}
		f.log.Debug("event forwarded", zap.String("type", event.Type))
	}
}
