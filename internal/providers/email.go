package providers

import (
	"context"
	"errors"
	"fmt"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/store"
	"mewayz-notifications/pkg/email"
)

// Email renders the notification to HTML and hands it to an email sender.
type Email struct {
	contacts store.ContactLookup
	sender   email.Sender
	logger   *logging.Logger
}

func NewEmail(contacts store.ContactLookup, sender email.Sender, logger *logging.Logger) *Email {
	return &Email{contacts: contacts, sender: sender, logger: logger}
}

func (e *Email) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	address, err := lookupAddress(ctx, e.contacts, n.UserID, models.ChannelEmail)
	if err != nil {
		return models.FailedErr(err)
	}

	body, err := RenderEmail(n)
	if err != nil {
		return models.FailedErr(err)
	}

	err = e.sender.Send(ctx, email.Message{
		To:       address,
		Subject:  n.Title,
		HTMLBody: body,
		Tag:      string(n.Type),
	})
	if err != nil {
		e.logger.Errorf("Email to user %s failed: %v", n.UserID, err)
		return models.FailedErr(err)
	}
	e.logger.Infof("Email notification %s sent to user %s", n.ID, n.UserID)
	return models.Delivered(1, "sent to "+address)
}

// lookupAddress resolves the user's address for a channel, keeping the
// "recipient address not found" wording for missing contacts.
func lookupAddress(ctx context.Context, contacts store.ContactLookup, userID string, c models.Channel) (string, error) {
	address, err := contacts.GetContactAddress(ctx, userID, c)
	if err != nil {
		if errors.Is(err, store.ErrContactNotFound) {
			return "", fmt.Errorf("%s %w for user %s", c, store.ErrContactNotFound, userID)
		}
		return "", fmt.Errorf("failed to look up %s address: %w", c, err)
	}
	return address, nil
}
