package models

import (
	"maps"
	"slices"
	"time"
)

// DeliveryState is the lifecycle state of one channel of a notification.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryCompleted DeliveryState = "completed"
	DeliveryFailed    DeliveryState = "failed"
)

// DeliveryStatus tracks attempts for one channel.
type DeliveryStatus struct {
	Status         DeliveryState `json:"status" bson:"status"`
	DeliveredCount int           `json:"delivered_count" bson:"delivered_count"`
	FailedCount    int           `json:"failed_count" bson:"failed_count"`
	LastAttempt    *time.Time    `json:"last_attempt,omitempty" bson:"last_attempt,omitempty"`
	NextRetry      *time.Time    `json:"next_retry,omitempty" bson:"next_retry,omitempty"`
}

// DeliveryResult is the outcome of one channel attempt. Build it with
// Delivered or Failed so Success and Detail never disagree.
type DeliveryResult struct {
	Success   bool   `json:"success" bson:"success"`
	Detail    string `json:"detail,omitempty" bson:"detail,omitempty"`
	Delivered int    `json:"delivered" bson:"delivered"`
}

// Delivered reports a successful attempt that reached count recipients.
func Delivered(count int, detail string) DeliveryResult {
	return DeliveryResult{Success: true, Detail: detail, Delivered: count}
}

// Failed reports an unsuccessful attempt.
func Failed(detail string) DeliveryResult {
	return DeliveryResult{Success: false, Detail: detail}
}

// FailedErr reports an unsuccessful attempt caused by err.
func FailedErr(err error) DeliveryResult {
	if err == nil {
		return Failed("unknown error")
	}
	return Failed(err.Error())
}

// NotificationRecord is the audit trail of one coordinator run: the
// notification and what every requested channel reported.
type NotificationRecord struct {
	Notification    `bson:",inline"`
	DeliveryResults map[Channel]DeliveryResult `json:"delivery_results" bson:"delivery_results"`
	UpdatedAt       time.Time                  `json:"updated_at" bson:"updated_at"`
}

// Clone returns a copy that shares no mutable maps or slices with n.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Channels = slices.Clone(n.Channels)
	c.Data = maps.Clone(n.Data)
	c.DeliveryStatus = maps.Clone(n.DeliveryStatus)
	if n.ScheduledFor != nil {
		t := *n.ScheduledFor
		c.ScheduledFor = &t
	}
	if n.ExpiresAt != nil {
		t := *n.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
