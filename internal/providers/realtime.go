package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
)

// ConnectionSender is the part of the connection registry the realtime
// channel writes through.
type ConnectionSender interface {
	SendPayload(userID string, payload []byte) int
}

// Publisher forwards a payload to other service instances.
type Publisher interface {
	Publish(ctx context.Context, userID string, payload []byte) error
}

// WireMessage is the frame pushed to live connections.
type WireMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Kind       models.Type    `json:"notification_type"`
	Priority   int            `json:"priority"`
	Data       map[string]any `json:"data,omitempty"`
	ActionURL  string         `json:"action_url,omitempty"`
	ActionText string         `json:"action_text,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewWireMessage builds the realtime frame for n.
func NewWireMessage(n *models.Notification) WireMessage {
	return WireMessage{
		Type:       "notification",
		ID:         n.ID,
		Title:      n.Title,
		Message:    n.Message,
		Kind:       n.Type,
		Priority:   n.Priority,
		Data:       n.Data,
		ActionURL:  n.ActionURL,
		ActionText: n.ActionText,
		CreatedAt:  n.CreatedAt,
	}
}

// Realtime pushes notifications to the user's live connections.
type Realtime struct {
	conns  ConnectionSender
	relay  Publisher
	logger *logging.Logger
}

// NewRealtime creates the realtime deliverer. relay may be nil.
func NewRealtime(conns ConnectionSender, relay Publisher, logger *logging.Logger) *Realtime {
	return &Realtime{conns: conns, relay: relay, logger: logger}
}

// Deliver succeeds even when the user has no live connection.
func (r *Realtime) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	payload, err := json.Marshal(NewWireMessage(n))
	if err != nil {
		return models.FailedErr(fmt.Errorf("failed to encode realtime message: %w", err))
	}

	sent := r.conns.SendPayload(n.UserID, payload)
	if r.relay != nil {
		if err := r.relay.Publish(ctx, n.UserID, payload); err != nil {
			r.logger.Warnf("Relay publish for notification %s failed: %v", n.ID, err)
		}
	}
	return models.Delivered(sent, fmt.Sprintf("sent to %d connection(s)", sent))
}
