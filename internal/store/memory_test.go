package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mewayz-notifications/internal/models"
)

func newRecord(t *testing.T, userID string, typ models.Type, channels ...models.Channel) models.NotificationRecord {
	t.Helper()
	n, err := models.NewNotification(models.NotificationParams{
		UserID:   userID,
		Title:    "title",
		Message:  "message",
		Type:     typ,
		Channels: channels,
	})
	require.NoError(t, err)
	return models.NotificationRecord{Notification: *n, DeliveryResults: map[models.Channel]models.DeliveryResult{}}
}

func TestMemoryStore_FindAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := newRecord(t, "u1", models.TypeInfo, models.ChannelRealtime)
	second := newRecord(t, "u1", models.TypeWarning, models.ChannelEmail, models.ChannelInApp)
	other := newRecord(t, "u2", models.TypeInfo, models.ChannelEmail)
	for _, rec := range []models.NotificationRecord{first, second, other} {
		require.NoError(t, s.InsertNotificationRecord(ctx, rec))
	}

	tests := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{name: "by user", filter: Filter{UserID: "u1"}, want: 2},
		{name: "by type", filter: Filter{UserID: "u1", Type: models.TypeWarning}, want: 1},
		{name: "by channel", filter: Filter{Channel: models.ChannelEmail}, want: 2},
		{name: "unread", filter: Filter{UserID: "u1", Read: Bool(false)}, want: 2},
		{name: "no match", filter: Filter{UserID: "nobody"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.CountNotifications(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	found, err := s.FindNotifications(ctx, Filter{UserID: "u1"}, FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, second.ID, found[0].ID, "newest first")

	found, err = s.FindNotifications(ctx, Filter{UserID: "u1"}, FindOptions{Sort: OldestFirst, Limit: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found[0].ID)

	found, err = s.FindNotifications(ctx, Filter{UserID: "u1"}, FindOptions{Offset: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found[0].ID)
}

func TestMemoryStore_Flags(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newRecord(t, "u1", models.TypeInfo, models.ChannelInApp)
	require.NoError(t, s.InsertNotificationRecord(ctx, rec))
	require.NoError(t, s.InsertNotificationHistoryRecord(ctx, rec.Notification))

	err := s.UpdateNotificationFlags(ctx, rec.ID, "someone-else", FlagUpdate{Read: Bool(true)})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateNotificationFlags(ctx, rec.ID, "u1", FlagUpdate{Clicked: Bool(true)}))
	got, err := s.GetNotificationRecord(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Clicked)
	assert.False(t, got.Read)

	h, ok := s.History(rec.ID)
	require.True(t, ok)
	assert.True(t, h.Clicked)

	changed, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	changed, err = s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, changed)
}

func TestMemoryStore_Contacts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetContactAddress(ctx, "u1", models.ChannelEmail)
	assert.ErrorIs(t, err, ErrContactNotFound)

	require.NoError(t, s.UpsertContactPoint(ctx, models.ContactPoint{UserID: "u1", Channel: models.ChannelEmail, Address: "a@example.com"}))
	require.NoError(t, s.UpsertContactPoint(ctx, models.ContactPoint{UserID: "u1", Channel: models.ChannelEmail, Address: "b@example.com"}))

	addr, err := s.GetContactAddress(ctx, "u1", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", addr)
}

func TestMemoryStore_RecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := newRecord(t, "u1", models.TypeInfo, models.ChannelRealtime)
	require.NoError(t, s.InsertNotificationRecord(ctx, rec))

	rec.DeliveryStatus[models.ChannelRealtime] = models.DeliveryStatus{Status: models.DeliveryFailed}
	got, err := s.GetNotificationRecord(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryPending, got.DeliveryStatus[models.ChannelRealtime].Status)

	assert.ErrorIs(t, s.ReplaceNotificationRecord(ctx, newRecord(t, "u1", models.TypeInfo, models.ChannelSMS)), ErrNotFound)
}
