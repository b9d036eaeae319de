package providers

import (
	"context"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/store"
)

// PushCommand is what a push gateway needs to notify one device.
type PushCommand struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	DeviceToken    string         `json:"device_token"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Priority       int            `json:"priority"`
	Data           map[string]any `json:"data,omitempty"`
	ActionURL      string         `json:"action_url,omitempty"`
}

// PushPublisher hands a push command to the gateway.
type PushPublisher interface {
	PublishPush(ctx context.Context, cmd PushCommand) error
}

// Push forwards the notification to a push gateway. With no publisher
// configured it logs the attempt and reports success.
type Push struct {
	contacts  store.ContactLookup
	publisher PushPublisher
	logger    *logging.Logger
}

func NewPush(contacts store.ContactLookup, publisher PushPublisher, logger *logging.Logger) *Push {
	return &Push{contacts: contacts, publisher: publisher, logger: logger}
}

func (p *Push) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	if p.publisher == nil {
		p.logger.Infof("Push notification %s for user %s (no provider configured)", n.ID, n.UserID)
		return models.Delivered(1, "logged")
	}

	token, err := lookupAddress(ctx, p.contacts, n.UserID, models.ChannelPush)
	if err != nil {
		return models.FailedErr(err)
	}
	err = p.publisher.PublishPush(ctx, PushCommand{
		NotificationID: n.ID,
		UserID:         n.UserID,
		DeviceToken:    token,
		Title:          n.Title,
		Body:           n.Message,
		Priority:       n.Priority,
		Data:           n.Data,
		ActionURL:      n.ActionURL,
	})
	if err != nil {
		return models.FailedErr(err)
	}
	return models.Delivered(1, "queued for push gateway")
}
