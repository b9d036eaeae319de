package providers

import (
	"context"
	"fmt"

	"mewayz-notifications/internal/models"
)

// HistoryWriter stores the user facing copy of a notification.
type HistoryWriter interface {
	InsertNotificationHistoryRecord(ctx context.Context, n models.Notification) error
}

// InApp delivers by persisting the notification for later retrieval.
type InApp struct {
	history HistoryWriter
}

func NewInApp(history HistoryWriter) *InApp {
	return &InApp{history: history}
}

func (a *InApp) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	if err := a.history.InsertNotificationHistoryRecord(ctx, *n); err != nil {
		return models.FailedErr(fmt.Errorf("failed to store in-app notification: %w", err))
	}
	return models.Delivered(1, "stored")
}
