package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/providers"
	"mewayz-notifications/internal/realtime"
	"mewayz-notifications/internal/store"
	"mewayz-notifications/pkg/email"
)

type okSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (s *okSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type failingInsertStore struct {
	*store.MemoryStore
}

func (failingInsertStore) InsertNotificationRecord(context.Context, models.NotificationRecord) error {
	return errors.New("connection refused")
}

// ctxAwareStore fails writes on a done context, as the database drivers do.
type ctxAwareStore struct {
	*store.MemoryStore
}

func (s ctxAwareStore) InsertNotificationRecord(ctx context.Context, rec models.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.InsertNotificationRecord(ctx, rec)
}

type fixture struct {
	svc      *Service
	store    *store.MemoryStore
	registry *realtime.Registry
	email    *okSender
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	logger := logging.Discard()
	mem := store.NewMemoryStore()
	if st == nil {
		st = mem
	}
	registry := realtime.NewRegistry(logger, 0)
	sender := &okSender{}

	d := providers.NewDispatcher(logger, time.Second)
	d.Register(models.ChannelRealtime, providers.NewRealtime(registry, nil, logger))
	d.Register(models.ChannelInApp, providers.NewInApp(st))
	d.Register(models.ChannelEmail, providers.NewEmail(st, sender, logger))
	d.Register(models.ChannelSMS, providers.NewSMS(st, nil, logger))
	d.Register(models.ChannelPush, providers.NewPush(st, nil, logger))
	d.Register(models.ChannelChatWebhook, providers.NewChatWebhook(st, providers.ChatWebhookOptions{}, logger))

	svc := New(st, d, registry, logger, Options{QueueSize: 10, PollInterval: 10 * time.Millisecond})
	return &fixture{svc: svc, store: mem, registry: registry, email: sender}
}

func params(channels ...models.Channel) models.NotificationParams {
	return models.NotificationParams{UserID: "u1", Title: "Hi", Message: "Test", Channels: channels}
}

func TestSend_MissingEmailAddressStillCompletes(t *testing.T) {
	f := newFixture(t, nil)
	n, err := Build(params(models.ChannelEmail))
	require.NoError(t, err)

	res := f.svc.Send(context.Background(), n)

	assert.True(t, res.Success)
	assert.Equal(t, n.ID, res.NotificationID)
	require.Contains(t, res.DeliveryResults, models.ChannelEmail)
	assert.False(t, res.DeliveryResults[models.ChannelEmail].Success)
	assert.Contains(t, res.DeliveryResults[models.ChannelEmail].Detail, "recipient address not found")

	rec, err := f.store.GetNotificationRecord(context.Background(), "u1", n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, rec.DeliveryStatus[models.ChannelEmail].Status)
	assert.Equal(t, 1, rec.DeliveryStatus[models.ChannelEmail].FailedCount)
}

func TestSend_StatusKeysMatchRequestedChannels(t *testing.T) {
	f := newFixture(t, nil)
	channels := []models.Channel{models.ChannelRealtime, models.ChannelEmail, models.ChannelInApp, models.ChannelSMS}
	n, err := Build(params(channels...))
	require.NoError(t, err)

	res := f.svc.Send(context.Background(), n)
	require.True(t, res.Success)

	assert.Len(t, n.DeliveryStatus, len(channels))
	assert.Len(t, res.DeliveryResults, len(channels))
	for _, c := range channels {
		assert.Contains(t, n.DeliveryStatus, c)
		assert.Contains(t, res.DeliveryResults, c)
		assert.NotEqual(t, models.DeliveryPending, n.DeliveryStatus[c].Status)
	}
	assert.Equal(t, models.DeliveryCompleted, n.DeliveryStatus[models.ChannelRealtime].Status)
}

func TestSend_PersistenceFailure(t *testing.T) {
	f := newFixture(t, failingInsertStore{MemoryStore: store.NewMemoryStore()})
	n, err := Build(params(models.ChannelRealtime))
	require.NoError(t, err)

	res := f.svc.Send(context.Background(), n)

	assert.False(t, res.Success)
	assert.Equal(t, n.ID, res.NotificationID)
	assert.Contains(t, res.Error, "connection refused")
}

func TestCreateAndSend_CallerCancellationDoesNotAbortDelivery(t *testing.T) {
	mem := store.NewMemoryStore()
	f := newFixture(t, ctxAwareStore{MemoryStore: mem})
	conn := &captureConn{}
	require.NoError(t, f.registry.Register(conn, "u1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 20 {
		res, err := f.svc.CreateAndSend(ctx, params(models.ChannelRealtime, models.ChannelInApp))
		require.NoError(t, err)
		require.True(t, res.Success, res.Error)
		assert.True(t, res.DeliveryResults[models.ChannelRealtime].Success)
		assert.True(t, res.DeliveryResults[models.ChannelInApp].Success)

		_, err = mem.GetNotificationRecord(context.Background(), "u1", res.NotificationID)
		assert.NoError(t, err)
	}

	out := f.svc.SendBulk(ctx, []string{"a", "b"}, params(models.ChannelInApp))
	assert.Equal(t, 2, out.Sent)
}

func TestSend_ReachesLiveConnections(t *testing.T) {
	f := newFixture(t, nil)
	conn := &captureConn{}
	require.NoError(t, f.registry.Register(conn, "u1"))

	n, err := Build(params(models.ChannelRealtime))
	require.NoError(t, err)
	res := f.svc.Send(context.Background(), n)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.DeliveryResults[models.ChannelRealtime].Delivered)
	assert.Len(t, conn.frames, 2)
}

func TestSend_ExpiredIsStillDelivered(t *testing.T) {
	f := newFixture(t, nil)
	expired := time.Now().Add(-time.Minute)
	p := params(models.ChannelInApp)
	p.ExpiresAt = &expired
	n, err := Build(p)
	require.NoError(t, err)

	res := f.svc.Send(context.Background(), n)
	assert.True(t, res.Success)
	assert.True(t, res.DeliveryResults[models.ChannelInApp].Success)
}

func TestCreateAndQueue_DefaultsChannels(t *testing.T) {
	f := newFixture(t, nil)
	n, err := f.svc.CreateAndQueue(context.Background(), params())
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelRealtime, models.ChannelInApp}, n.Channels)
	assert.Equal(t, 1, f.svc.QueueLen())
}

func TestCreateAndQueue_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CreateAndQueue(context.Background(), models.NotificationParams{Title: "no user"})
	assert.ErrorIs(t, err, models.ErrMissingRecipient)
	assert.Equal(t, 0, f.svc.QueueLen())
}

func TestCreateAndSend_ScheduledIsQueued(t *testing.T) {
	f := newFixture(t, nil)
	later := time.Now().Add(time.Hour)
	p := params(models.ChannelInApp)
	p.ScheduledFor = &later

	res, err := f.svc.CreateAndSend(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Queued)
	assert.Equal(t, 1, f.svc.QueueLen())
}

func TestLoop_DrainsQueueAndStops(t *testing.T) {
	f := newFixture(t, nil)
	var wg sync.WaitGroup
	f.svc.Start(&wg)

	n, err := f.svc.CreateAndQueue(context.Background(), params(models.ChannelInApp))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := f.store.GetNotificationRecord(context.Background(), "u1", n.ID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	later := time.Now().Add(time.Hour)
	p := params(models.ChannelInApp)
	p.ScheduledFor = &later
	scheduled, err := f.svc.CreateAndQueue(context.Background(), p)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = f.store.GetNotificationRecord(context.Background(), "u1", scheduled.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "future notification must wait")

	f.svc.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, 1, f.svc.QueueLen())
}

func TestSendBulk(t *testing.T) {
	f := newFixture(t, nil)
	out := f.svc.SendBulk(context.Background(), []string{"a", "b", "a", ""}, params(models.ChannelInApp))

	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 2, out.Sent)
	assert.Equal(t, 0, out.Failed)
	require.Len(t, out.Results, 2)

	page, err := f.svc.History(context.Background(), "b", HistoryQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
}

func TestRetry_ResendsFailedChannels(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	n, err := Build(params(models.ChannelEmail, models.ChannelInApp))
	require.NoError(t, err)
	require.True(t, f.svc.Send(ctx, n).Success)

	require.NoError(t, f.store.UpsertContactPoint(ctx, models.ContactPoint{UserID: "u1", Channel: models.ChannelEmail, Address: "u1@example.com"}))

	res, err := f.svc.Retry(ctx, "u1", n.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.DeliveryResults, 1)
	assert.True(t, res.DeliveryResults[models.ChannelEmail].Success)
	assert.Len(t, f.email.sent, 1)

	rec, err := f.store.GetNotificationRecord(ctx, "u1", n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryCompleted, rec.DeliveryStatus[models.ChannelEmail].Status)
	assert.True(t, rec.DeliveryResults[models.ChannelEmail].Success)

	_, err = f.svc.Retry(ctx, "u1", n.ID)
	assert.ErrorIs(t, err, ErrNothingToRetry)

	_, err = f.svc.Retry(ctx, "u2", n.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistoryFlagsAndStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var ids []string
	for _, typ := range []models.Type{models.TypeInfo, models.TypeInfo, models.TypeWarning, models.TypeError} {
		p := params(models.ChannelInApp)
		p.Type = typ
		res, err := f.svc.CreateAndSend(ctx, p)
		require.NoError(t, err)
		ids = append(ids, res.NotificationID)
	}

	require.NoError(t, f.svc.MarkRead(ctx, "u1", ids[0]))
	require.NoError(t, f.svc.MarkClicked(ctx, "u1", ids[1]))
	assert.ErrorIs(t, f.svc.MarkRead(ctx, "u2", ids[2]), store.ErrNotFound)

	page, err := f.svc.History(ctx, "u1", HistoryQuery{UnreadOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.EqualValues(t, 2, page.Unread)
	assert.Equal(t, DefaultHistoryLimit, page.Limit)

	page, err = f.svc.History(ctx, "u1", HistoryQuery{Type: models.TypeInfo, Limit: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, MaxHistoryLimit, page.Limit)

	conn := &captureConn{}
	require.NoError(t, f.registry.Register(conn, "u1"))

	st, err := f.svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, st.Total)
	assert.EqualValues(t, 2, st.Unread)
	assert.EqualValues(t, 2, st.Read)
	assert.EqualValues(t, 1, st.Clicked)
	assert.Equal(t, 50.0, st.ReadRate)
	assert.Equal(t, 25.0, st.ClickRate)
	assert.EqualValues(t, 2, st.ByType[models.TypeInfo])
	assert.NotContains(t, st.ByType, models.TypeSystem)
	assert.Equal(t, 1, st.ActiveConnections)

	changed, err := f.svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	status := f.svc.ConnectionStatus("u1")
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.ActiveConnections)
	assert.Len(t, status.Connections, 1)

	assert.False(t, f.svc.ConnectionStatus("ghost").Connected)
}

type captureConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *captureConn) Close() error { return nil }
