package models

import "time"

// NotificationRequest is the wire shape accepted from the REST API and the
// Kafka request topic.
type NotificationRequest struct {
	UserID       string         `json:"user_id"`
	Title        string         `json:"title" binding:"required"`
	Message      string         `json:"message" binding:"required"`
	Type         string         `json:"type"`
	Channels     []string       `json:"channels"`
	Priority     *int           `json:"priority"`
	Data         map[string]any `json:"data"`
	ActionURL    string         `json:"action_url"`
	ActionText   string         `json:"action_text"`
	ScheduledFor *time.Time     `json:"scheduled_for"`
	ExpiresAt    *time.Time     `json:"expires_at"`
}

// BulkNotificationRequest fans the same content out to several users.
type BulkNotificationRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1"`
	NotificationRequest
}

// Params validates the request's enumerations and converts it to
// NotificationParams. An empty channel list is kept empty so the caller can
// decide whether to apply DefaultChannels.
func (r NotificationRequest) Params() (NotificationParams, error) {
	t, err := ParseType(r.Type)
	if err != nil {
		return NotificationParams{}, err
	}
	channels, err := ParseChannels(r.Channels)
	if err != nil {
		return NotificationParams{}, err
	}
	return NotificationParams{
		UserID:       r.UserID,
		Title:        r.Title,
		Message:      r.Message,
		Type:         t,
		Channels:     channels,
		Priority:     r.Priority,
		Data:         r.Data,
		ActionURL:    r.ActionURL,
		ActionText:   r.ActionText,
		ScheduledFor: r.ScheduledFor,
		ExpiresAt:    r.ExpiresAt,
	}, nil
}
