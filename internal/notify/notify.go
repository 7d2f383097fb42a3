// ABOUTME: Outbound handoff notifier - pages external channels when a visitor queues
// ABOUTME: Webhook and log implementations; failures are logged, never retried here

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// WebhookNotifier POSTs a JSON payload to a configured endpoint once per
// handoff escalation. The receiving side owns delivery to email/SMS
// providers; this side only reports the escalation.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a notifier targeting the given URL.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{},
		logger: logger.With("component", "notifier"),
	}
}

// handoffPayload is the webhook body shape.
type handoffPayload struct {
	WorkspaceID  string `json:"workspaceId"`
	SessionID    string `json:"sessionId"`
	FirstMessage string `json:"firstMessage,omitempty"`
}

// NotifyHandoff posts the escalation. The caller treats this as
// fire-and-forget; a non-2xx response is an error for the caller to log.
func (n *WebhookNotifier) NotifyHandoff(ctx context.Context, workspaceID, sessionID, firstMessage string) error {
	body, err := json.Marshal(handoffPayload{
		WorkspaceID:  workspaceID,
		SessionID:    sessionID,
		FirstMessage: firstMessage,
	})
	if err != nil {
		return fmt.Errorf("encoding handoff payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating handoff request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting handoff notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("handoff webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug("handoff notification delivered",
		"workspace_id", workspaceID,
		"session_id", sessionID,
	)
	return nil
}

// LogNotifier records escalations to the log only. Used when no webhook is
// configured so the coordinator always has a notifier to call.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// NotifyHandoff logs the escalation.
func (n *LogNotifier) NotifyHandoff(ctx context.Context, workspaceID, sessionID, firstMessage string) error {
	n.logger.Info("handoff requested",
		"workspace_id", workspaceID,
		"session_id", sessionID,
		"first_message", firstMessage,
	)
	return nil
}
