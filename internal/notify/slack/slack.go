// Package slack posts priority-discrepancy notifications to Slack via
// incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/triagedesk/internal/board"
)

const httpTimeout = 10 * time.Second

// Notifier sends discrepancy alerts to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a Slack notifier. If webhookURL is empty, notifications are
// no-ops.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// NotifyDiscrepancy posts one patient's manual/AI priority disagreement to
// the configured webhook. Returns nil immediately when unconfigured.
func (n *Notifier) NotifyDiscrepancy(ctx context.Context, e board.Entry) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(e)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(e board.Entry) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(e),
			{"type": "divider"},
			fieldsBlock(e),
		},
	}
}

func headerBlock(e board.Entry) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("⚠️ Priority discrepancy: %s, %d", e.Patient.Nombre, e.Patient.Edad),
		},
	}
}

func fieldsBlock(e board.Entry) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Manual:* %d", e.ManualPriority),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*AI:* %d", e.AIPriority),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Category:* %s", e.Patient.Categoria),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Waiting:* %s", e.WaitingTime.Round(time.Second)),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}
