package providers

import (
	"context"
	"fmt"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/store"
)

// TextSender sends an SMS to a phone number. *sms.Client satisfies it.
type TextSender interface {
	Send(ctx context.Context, toNumber, body string) error
}

// SMS texts the notification to the user's phone number. With no sender
// configured it logs the attempt and reports success.
type SMS struct {
	contacts store.ContactLookup
	sender   TextSender
	logger   *logging.Logger
}

func NewSMS(contacts store.ContactLookup, sender TextSender, logger *logging.Logger) *SMS {
	return &SMS{contacts: contacts, sender: sender, logger: logger}
}

func (s *SMS) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	if s.sender == nil {
		s.logger.Infof("SMS notification %s for user %s (no provider configured)", n.ID, n.UserID)
		return models.Delivered(1, "logged")
	}

	number, err := lookupAddress(ctx, s.contacts, n.UserID, models.ChannelSMS)
	if err != nil {
		return models.FailedErr(err)
	}
	if err := s.sender.Send(ctx, number, smsBody(n)); err != nil {
		return models.FailedErr(err)
	}
	return models.Delivered(1, "sent to "+number)
}

func smsBody(n *models.Notification) string {
	body := fmt.Sprintf("%s\n%s", n.Title, n.Message)
	if n.ActionURL != "" {
		body += "\n" + n.ActionURL
	}
	return body
}
