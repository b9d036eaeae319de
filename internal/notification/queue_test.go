package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mewayz-notifications/internal/models"
)

func queued(t *testing.T, title string, scheduledFor *time.Time) *models.Notification {
	t.Helper()
	n, err := Build(models.NotificationParams{UserID: "u1", Title: title, ScheduledFor: scheduledFor})
	require.NoError(t, err)
	return n
}

func TestDeliveryQueue_ScheduledNotDueUntilItsTime(t *testing.T) {
	q := NewDeliveryQueue(0)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	require.NoError(t, q.Push(queued(t, "later", &later), now))

	n, wait := q.Next(now.Add(30 * time.Minute))
	assert.Nil(t, n)
	assert.Equal(t, 30*time.Minute, wait)
	assert.Equal(t, 1, q.Len(), "not-yet-due item stays queued")

	n, _ = q.Next(later.Add(time.Second))
	require.NotNil(t, n)
	assert.Equal(t, "later", n.Title)
	assert.Equal(t, 0, q.Len())
}

func TestDeliveryQueue_FIFOForDueItems(t *testing.T) {
	q := NewDeliveryQueue(0)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	require.NoError(t, q.Push(queued(t, "scheduled", &future), now))
	require.NoError(t, q.Push(queued(t, "first", nil), now))
	require.NoError(t, q.Push(queued(t, "second", &past), now))
	require.NoError(t, q.Push(queued(t, "third", nil), now))

	var order []string
	for {
		n, _ := q.Next(now)
		if n == nil {
			break
		}
		order = append(order, n.Title)
	}
	assert.Equal(t, []string{"first", "second", "third"}, order)

	n, wait := q.Next(now)
	assert.Nil(t, n)
	assert.Equal(t, time.Hour, wait)
}

func TestDeliveryQueue_Empty(t *testing.T) {
	q := NewDeliveryQueue(0)
	n, wait := q.Next(time.Now())
	assert.Nil(t, n)
	assert.Zero(t, wait)
}

func TestDeliveryQueue_Capacity(t *testing.T) {
	q := NewDeliveryQueue(1)
	now := time.Now()
	require.NoError(t, q.Push(queued(t, "a", nil), now))
	assert.ErrorIs(t, q.Push(queued(t, "b", nil), now), ErrQueueFull)

	select {
	case <-q.Wakeup():
	default:
		t.Fatal("push should signal wakeup")
	}
}
