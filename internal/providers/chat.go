package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/store"
	"mewayz-notifications/internal/utils"
	"mewayz-notifications/pkg/telegram"
)

// ChatSender posts a MarkdownV2 message into a chat. *telegram.Client satisfies it.
type ChatSender interface {
	Send(ctx context.Context, chatID, text string) error
}

// ChatWebhook posts the notification into a chat integration: a Telegram
// chat when a bot is configured, otherwise an incoming webhook URL. With
// neither configured it logs the attempt and reports success.
type ChatWebhook struct {
	contacts   store.ContactLookup
	bot        ChatSender
	webhookURL string
	client     *http.Client
	attempts   int
	retryDelay time.Duration
	logger     *logging.Logger
}

// ChatWebhookOptions configures the outbound integrations. Zero values
// disable the corresponding integration.
type ChatWebhookOptions struct {
	Bot        ChatSender
	WebhookURL string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
}

func NewChatWebhook(contacts store.ContactLookup, opts ChatWebhookOptions, logger *logging.Logger) *ChatWebhook {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &ChatWebhook{
		contacts:   contacts,
		bot:        opts.Bot,
		webhookURL: opts.WebhookURL,
		client:     &http.Client{Timeout: opts.Timeout},
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}
}

func (c *ChatWebhook) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	switch {
	case c.bot != nil:
		chatID, err := lookupAddress(ctx, c.contacts, n.UserID, models.ChannelChatWebhook)
		if err != nil {
			return models.FailedErr(err)
		}
		formatted := telegram.FormatMessage(n.Title, n.Message, n.ActionText, n.ActionURL)
		err = utils.Retry(ctx, c.logger, c.attempts, c.retryDelay, func() error {
			return c.bot.Send(ctx, chatID, formatted)
		})
		if err != nil {
			return models.FailedErr(err)
		}
		return models.Delivered(1, "posted to chat "+chatID)

	case c.webhookURL != "":
		text := chatText(n)
		err := utils.Retry(ctx, c.logger, c.attempts, c.retryDelay, func() error {
			return c.post(ctx, text)
		})
		if err != nil {
			return models.FailedErr(err)
		}
		return models.Delivered(1, "posted to webhook")

	default:
		c.logger.Infof("Chat notification %s for user %s (no provider configured)", n.ID, n.UserID)
		return models.Delivered(1, "logged")
	}
}

func (c *ChatWebhook) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func chatText(n *models.Notification) string {
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Message)
	if n.ActionURL != "" {
		label := n.ActionText
		if label == "" {
			label = n.ActionURL
		}
		text += fmt.Sprintf("\n[%s](%s)", label, n.ActionURL)
	}
	return text
}
