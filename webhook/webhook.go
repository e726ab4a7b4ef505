// Package webhook posts signed batch events to a configured endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/harvest/models"
)

// EventBatchCompleted is sent when a batch run or retry pass finishes.
const EventBatchCompleted = "batch.completed"

// SignatureHeader carries "sha256=<hex hmac of the body>".
const SignatureHeader = "X-Harvest-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// BatchCompleted builds the event for a finished batch.
func BatchCompleted(s models.BatchSummary) *Event {
	return &Event{
		Type:      EventBatchCompleted,
		JobID:     s.Job,
		Timestamp: time.Now().Unix(),
		Data:      s,
	}
}

// Sign returns the signature header value of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts event to url once. The body is signed when secret is set.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Harvest-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// retryDelays are the waits before each attempt of DeliverWithRetry.
var retryDelays = []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second}

// DeliverWithRetry tries Deliver up to four times, waiting 1s, 5s and
// 30s between attempts. It returns the last error.
func DeliverWithRetry(ctx context.Context, url, secret string, event *Event) error {
	var err error
	for attempt, delay := range retryDelays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = Deliver(attemptCtx, url, secret, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered", "url", url, "event", event.Type, "job_id", event.JobID, "attempt", attempt+1)
			return nil
		}
		slog.Warn("webhook delivery failed", "url", url, "event", event.Type, "job_id", event.JobID, "attempt", attempt+1, "error", err)
	}
	slog.Error("webhook delivery exhausted all retries", "url", url, "event", event.Type, "job_id", event.JobID)
	return err
}

// Notifier delivers batch summaries to one endpoint.
type Notifier struct {
	URL    string
	Secret string
}

// Notify delivers the summary in the foreground and logs a final failure.
// CLI runs call it before exiting so the event is not lost.
func (n Notifier) Notify(ctx context.Context, s models.BatchSummary) {
	if n.URL == "" {
		return
	}
	if err := DeliverWithRetry(ctx, n.URL, n.Secret, BatchCompleted(s)); err != nil {
		slog.Error("webhook: batch notification lost", "job", s.Job, "error", err)
	}
}

// Hook returns a batch completion hook bound to ctx, or nil when no URL
// is configured.
func (n Notifier) Hook(ctx context.Context) func(models.BatchSummary) {
	if n.URL == "" {
		return nil
	}
	return func(s models.BatchSummary) { n.Notify(ctx, s) }
}
