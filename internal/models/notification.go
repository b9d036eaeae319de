package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification. It drives default rendering (accent colour,
// labels) but never delivery semantics.
type Type string

const (
	TypeInfo      Type = "info"
	TypeSuccess   Type = "success"
	TypeWarning   Type = "warning"
	TypeError     Type = "error"
	TypeCritical  Type = "critical"
	TypeMarketing Type = "marketing"
	TypeSystem    Type = "system"
)

// AllTypes lists every notification type in display order.
var AllTypes = []Type{TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeCritical, TypeMarketing, TypeSystem}

// ParseType validates a caller supplied type string. Empty input yields TypeInfo.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeInfo, nil
	}
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Channel is one delivery mechanism.
type Channel string

const (
	ChannelRealtime    Channel = "realtime"
	ChannelEmail       Channel = "email"
	ChannelSMS         Channel = "sms"
	ChannelPush        Channel = "push"
	ChannelInApp       Channel = "in_app"
	ChannelChatWebhook Channel = "chat_webhook"
)

// AllChannels lists every supported channel.
var AllChannels = []Channel{ChannelRealtime, ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp, ChannelChatWebhook}

// DefaultChannels is used when a caller does not request any channel explicitly.
var DefaultChannels = []Channel{ChannelRealtime, ChannelInApp}

// ParseChannel validates a caller supplied channel string.
func ParseChannel(s string) (Channel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range AllChannels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChannel, s)
}

// ParseChannels validates a list of channel strings and collapses duplicates,
// keeping first-seen order.
func ParseChannels(in []string) ([]Channel, error) {
	out := make([]Channel, 0, len(in))
	for _, s := range in {
		c, err := ParseChannel(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return uniqueChannels(out), nil
}

func uniqueChannels(in []Channel) []Channel {
	seen := make(map[Channel]struct{}, len(in))
	out := make([]Channel, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// PriorityOf returns a pointer to p for NotificationParams.Priority.
func PriorityOf(p int) *int {
	return &p
}

// ClampPriority forces p into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Notification is the unit of work pushed through the delivery pipeline.
type Notification struct {
	ID             string                     `json:"id" bson:"_id"`
	UserID         string                     `json:"user_id" bson:"user_id"`
	Title          string                     `json:"title" bson:"title"`
	Message        string                     `json:"message" bson:"message"`
	Type           Type                       `json:"type" bson:"type"`
	Channels       []Channel                  `json:"channels" bson:"channels"`
	Priority       int                        `json:"priority" bson:"priority"`
	Data           map[string]any             `json:"data,omitempty" bson:"data,omitempty"`
	ActionURL      string                     `json:"action_url,omitempty" bson:"action_url,omitempty"`
	ActionText     string                     `json:"action_text,omitempty" bson:"action_text,omitempty"`
	CreatedAt      time.Time                  `json:"created_at" bson:"created_at"`
	ScheduledFor   *time.Time                 `json:"scheduled_for,omitempty" bson:"scheduled_for,omitempty"`
	ExpiresAt      *time.Time                 `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Read           bool                       `json:"read" bson:"read"`
	Clicked        bool                       `json:"clicked" bson:"clicked"`
	DeliveryStatus map[Channel]DeliveryStatus `json:"delivery_status" bson:"delivery_status"`
}

// NotificationParams are the discrete inputs used to build a Notification.
type NotificationParams struct {
	UserID       string
	Title        string
	Message      string
	Type         Type
	Channels     []Channel
	Priority     *int // nil selects DefaultPriority
	Data         map[string]any
	ActionURL    string
	ActionText   string
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
}

// NewNotification validates params and builds a Notification with a fresh id,
// a clamped priority and one pending delivery status per requested channel.
// Callers that want the default channel set must fill it in themselves.
func NewNotification(p NotificationParams) (*Notification, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, ErrMissingRecipient
	}
	t := p.Type
	if t == "" {
		t = TypeInfo
	}
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	channels := uniqueChannels(p.Channels)
	if len(channels) == 0 {
		return nil, ErrEmptyChannels
	}
	for _, c := range channels {
		if _, err := ParseChannel(string(c)); err != nil {
			return nil, err
		}
	}
	priority := DefaultPriority
	if p.Priority != nil {
		priority = *p.Priority
	}

	n := &Notification{
		ID:             uuid.New().String(),
		UserID:         p.UserID,
		Title:          p.Title,
		Message:        p.Message,
		Type:           t,
		Channels:       channels,
		Priority:       ClampPriority(priority),
		Data:           p.Data,
		ActionURL:      p.ActionURL,
		ActionText:     p.ActionText,
		CreatedAt:      time.Now().UTC(),
		ScheduledFor:   p.ScheduledFor,
		ExpiresAt:      p.ExpiresAt,
		DeliveryStatus: make(map[Channel]DeliveryStatus, len(channels)),
	}
	for _, c := range channels {
		n.DeliveryStatus[c] = DeliveryStatus{Status: DeliveryPending}
	}
	return n, nil
}

// IsDue reports whether the notification may be dispatched at now.
func (n *Notification) IsDue(now time.Time) bool {
	return n.ScheduledFor == nil || !n.ScheduledFor.After(now)
}

// IsExpired reports whether expiresAt has passed.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// HasChannel reports whether c was requested.
func (n *Notification) HasChannel(c Channel) bool {
	_, ok := n.DeliveryStatus[c]
	return ok
}

// RecordResult folds one channel attempt into DeliveryStatus. Results for
// channels that were not requested are ignored.
func (n *Notification) RecordResult(c Channel, res DeliveryResult, at time.Time) {
	st, ok := n.DeliveryStatus[c]
	if !ok {
		return
	}
	attempted := at
	st.LastAttempt = &attempted
	st.NextRetry = nil
	if res.Success {
		st.Status = DeliveryCompleted
		st.DeliveredCount += res.Delivered
	} else {
		st.Status = DeliveryFailed
		st.FailedCount++
	}
	n.DeliveryStatus[c] = st
}

// FailedChannels returns requested channels whose last attempt failed.
func (n *Notification) FailedChannels() []Channel {
	var out []Channel
	for _, c := range n.Channels {
		if n.DeliveryStatus[c].Status == DeliveryFailed {
			out = append(out, c)
		}
	}
	return out
}
