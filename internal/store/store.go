package store

import (
	"context"
	"errors"

	"mewayz-notifications/internal/models"
)

var (
	ErrNotFound        = errors.New("notification not found")
	ErrContactNotFound = errors.New("recipient address not found")
)

// Store is the durable collaborator the notification pipeline reads contact
// data from and writes delivery records to.
type Store interface {
	ContactLookup

	// InsertNotificationRecord persists the audit record of one coordinator run.
	InsertNotificationRecord(ctx context.Context, rec models.NotificationRecord) error

	// ReplaceNotificationRecord overwrites the delivery outcome of an existing record.
	ReplaceNotificationRecord(ctx context.Context, rec models.NotificationRecord) error

	// GetNotificationRecord loads a record owned by userID.
	GetNotificationRecord(ctx context.Context, userID, notificationID string) (*models.NotificationRecord, error)

	// InsertNotificationHistoryRecord stores the user facing in-app copy.
	InsertNotificationHistoryRecord(ctx context.Context, n models.Notification) error

	// UpdateNotificationFlags sets read/clicked on both the record and the
	// history copy. Concurrent updates are last-write-wins.
	UpdateNotificationFlags(ctx context.Context, notificationID, userID string, flags FlagUpdate) error

	// MarkAllRead flags every unread notification of userID and returns how many changed.
	MarkAllRead(ctx context.Context, userID string) (int64, error)

	CountNotifications(ctx context.Context, f Filter) (int64, error)
	FindNotifications(ctx context.Context, f Filter, opts FindOptions) ([]models.NotificationRecord, error)

	// UpsertContactPoint registers or replaces the address for (user, channel).
	UpsertContactPoint(ctx context.Context, cp models.ContactPoint) error

	Ping(ctx context.Context) error
	Close() error
}

// ContactLookup resolves a user's address for a channel. Implementations
// return ErrContactNotFound when nothing is on file.
type ContactLookup interface {
	GetContactAddress(ctx context.Context, userID string, channel models.Channel) (string, error)
}

// FlagUpdate carries the engagement flags to set. Nil fields are left as is.
type FlagUpdate struct {
	Read    *bool
	Clicked *bool
}

// Filter narrows notification queries. Zero values mean "any".
type Filter struct {
	UserID  string
	Type    models.Type
	Channel models.Channel
	Read    *bool
	Clicked *bool
}

// SortOrder controls created_at ordering.
type SortOrder int

const (
	NewestFirst SortOrder = iota
	OldestFirst
)

// FindOptions paginates FindNotifications.
type FindOptions struct {
	Sort   SortOrder
	Limit  int
	Offset int
}

// Bool is a helper for building FlagUpdate and Filter values.
func Bool(v bool) *bool { return &v }
