// Package notify delivers bulk operation summaries.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AgentMesh-Net/bulkops/internal/bulk"
	"github.com/AgentMesh-Net/bulkops/internal/logging"
)

// Webhook posts each summary as JSON to a fixed URL.
type Webhook struct {
	url  string
	http *http.Client
}

// NewWebhook creates a Webhook notifier.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{url: url, http: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Notify(ctx context.Context, n *bulk.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := logging.TaskIDFromContext(ctx); id != "" {
		req.Header.Set("X-Task-ID", id)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Log writes each summary to the service log. Used when no webhook is set.
type Log struct {
	log *logging.Logger
}

// NewLog creates a log-only notifier.
func NewLog(log *logging.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(ctx context.Context, n *bulk.Notification) error {
	l.log.WithContext(ctx).Info("bulk notification",
		"operation", n.Operation,
		"outcome", n.Outcome,
		"update_errors", n.UpdateErrors.Sorted(),
		"partial_errors", n.PartialErrors.Sorted(),
		"assessment_ids", n.AssessmentIDs,
	)
	return nil
}

var (
	_ bulk.Notifier = (*Webhook)(nil)
	_ bulk.Notifier = (*Log)(nil)
)
