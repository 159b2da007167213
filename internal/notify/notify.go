package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"ytgate/internal/config"
)

// Notifier is the administrative notification sink plus best-effort owner
// messaging. Implementations must treat delivery as fire-and-forget: a
// returned error is informational and callers never fail their own operation
// because of it.
type Notifier interface {
	// NotifyAdmin delivers an operational message to the fixed administrative
	// recipient.
	NotifyAdmin(ctx context.Context, text string) error
	// NotifyOwner delivers a message to the owner identified by ownerID.
	NotifyOwner(ctx context.Context, ownerID int64, text string) error
}

type adminMessage struct {
	Text string `json:"text"`
}

type ownerMessage struct {
	OwnerID int64  `json:"owner_id"`
	Text    string `json:"text"`
}

// WebhookNotifier posts JSON messages to configured webhook endpoints. An
// empty endpoint URL disables that channel; the message is logged instead.
type WebhookNotifier struct {
	client       *resty.Client
	adminWebhook string
	ownerWebhook string
	logger       *slog.Logger
}

// NewWebhookNotifier creates a notifier from the notify configuration.
func NewWebhookNotifier(cfg config.NotifyConfig, logger *slog.Logger) *WebhookNotifier {
	client := resty.New().SetTimeout(cfg.TimeoutDuration)
	return &WebhookNotifier{
		client:       client,
		adminWebhook: cfg.AdminWebhook,
		ownerWebhook: cfg.OwnerWebhook,
		logger:       logger.With("component", "notify"),
	}
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body any) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (n *WebhookNotifier) NotifyAdmin(ctx context.Context, text string) error {
	if n.adminWebhook == "" {
		n.logger.Info("Admin notification (no webhook configured)", "text", text)
		return nil
	}
	if err := n.post(ctx, n.adminWebhook, adminMessage{Text: text}); err != nil {
		n.logger.Warn("Failed to deliver admin notification", "error", err)
		return err
	}
	return nil
}

func (n *WebhookNotifier) NotifyOwner(ctx context.Context, ownerID int64, text string) error {
	if n.ownerWebhook == "" {
		n.logger.Info("Owner notification (no webhook configured)", "owner_id", ownerID, "text", text)
		return nil
	}
	if err := n.post(ctx, n.ownerWebhook, ownerMessage{OwnerID: ownerID, Text: text}); err != nil {
		n.logger.Warn("Failed to deliver owner notification", "owner_id", ownerID, "error", err)
		return err
	}
	return nil
}
