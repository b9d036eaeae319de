// Package notification builds notifications, fans them out across channels
// and keeps the delivery queue drained.
package notification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/realtime"
	"mewayz-notifications/internal/store"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

var ErrNothingToRetry = errors.New("notification has no failed channels")

// ChannelDeliverer runs one channel attempt. *providers.Dispatcher satisfies it.
type ChannelDeliverer interface {
	Deliver(ctx context.Context, c models.Channel, n *models.Notification) models.DeliveryResult
}

// ConnectionTracker answers connection questions. *realtime.Registry satisfies it.
type ConnectionTracker interface {
	CountForUser(userID string) int
	CountTotal() int
	Connections(userID string) []realtime.ConnectionRecord
}

// SendResult is what a caller gets back from one coordinator run. Success
// means the run completed and was persisted, not that every channel delivered.
type SendResult struct {
	Success         bool                                     `json:"success"`
	NotificationID  string                                   `json:"notification_id"`
	DeliveryResults map[models.Channel]models.DeliveryResult `json:"delivery_results,omitempty"`
	Queued          bool                                     `json:"queued,omitempty"`
	Error           string                                   `json:"error,omitempty"`
}

type Options struct {
	QueueSize    int
	PollInterval time.Duration
}

// Service is the notification coordinator.
type Service struct {
	store        store.Store
	dispatcher   ChannelDeliverer
	conns        ConnectionTracker
	logger       *logging.Logger
	queue        *DeliveryQueue
	pollInterval time.Duration
	now          func() time.Time

	// loopCtx stops the drain loop; sendCtx is handed to in-flight sends and
	// is never cancelled by Stop.
	loopCtx context.Context
	cancel  context.CancelFunc
	sendCtx context.Context
	wg      *sync.WaitGroup
}

func New(st store.Store, dispatcher ChannelDeliverer, conns ConnectionTracker, logger *logging.Logger, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:        st,
		dispatcher:   dispatcher,
		conns:        conns,
		logger:       logger,
		queue:        NewDeliveryQueue(opts.QueueSize),
		pollInterval: opts.PollInterval,
		now:          func() time.Time { return time.Now().UTC() },
		loopCtx:      ctx,
		cancel:       cancel,
		sendCtx:      context.Background(),
	}
}

// Start launches the drain loop.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	s.wg.Add(1)
	go s.run()
}

// Stop asks the drain loop to exit after its current iteration. Sends already
// in progress run to completion.
func (s *Service) Stop() {
	s.cancel()
}

// QueueLen reports how many notifications are waiting.
func (s *Service) QueueLen() int {
	return s.queue.Len()
}

func (s *Service) run() {
	defer s.wg.Done()
	s.logger.Infof("Delivery loop started (poll interval %s)", s.pollInterval)
	for {
		select {
		case <-s.loopCtx.Done():
			s.logger.Infof("Delivery loop stopped (%d notification(s) left in queue)", s.queue.Len())
			return
		default:
		}

		n, wait := s.queue.Next(s.now())
		if n != nil {
			s.dispatch(n)
			continue
		}

		if wait <= 0 || wait > s.pollInterval {
			wait = s.pollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.loopCtx.Done():
			timer.Stop()
		case <-s.queue.Wakeup():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Service) dispatch(n *models.Notification) {
	res := s.Send(s.sendCtx, n)
	if !res.Success {
		s.logger.Errorf("Queued notification %s failed: %s", n.ID, res.Error)
		return
	}
	s.logger.Debugf("Queued notification %s dispatched", n.ID)
}

// Build validates params and constructs a notification, applying the
// default channel set when none is requested.
func Build(p models.NotificationParams) (*models.Notification, error) {
	if len(p.Channels) == 0 {
		p.Channels = models.DefaultChannels
	}
	return models.NewNotification(p)
}

// CreateAndQueue builds a notification and hands it to the delivery queue.
func (s *Service) CreateAndQueue(_ context.Context, p models.NotificationParams) (*models.Notification, error) {
	n, err := Build(p)
	if err != nil {
		return nil, err
	}
	if err := s.Enqueue(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Enqueue admits an already built notification.
func (s *Service) Enqueue(n *models.Notification) error {
	if err := s.queue.Push(n, s.now()); err != nil {
		s.logger.Errorf("Queue full, dropping notification %s for user %s", n.ID, n.UserID)
		return fmt.Errorf("failed to queue notification %s: %w", n.ID, err)
	}
	s.logger.Infof("Queued notification %s for user %s", n.ID, n.UserID)
	return nil
}

// CreateAndSend builds a notification and delivers it now, or queues it when
// it is scheduled for later.
func (s *Service) CreateAndSend(ctx context.Context, p models.NotificationParams) (SendResult, error) {
	n, err := Build(p)
	if err != nil {
		return SendResult{}, err
	}
	if !n.IsDue(s.now()) {
		if err := s.Enqueue(n); err != nil {
			return SendResult{NotificationID: n.ID, Error: err.Error()}, err
		}
		return SendResult{Success: true, NotificationID: n.ID, Queued: true}, nil
	}
	// A caller that goes away must not abort deliveries already under way;
	// the dispatcher's per-channel timeout still bounds each one.
	return s.Send(context.WithoutCancel(ctx), n), nil
}

// Send fans n out to every requested channel, folds the results into its
// delivery status and persists the outcome. It never panics or returns an
// error; failures are reported in the result.
func (s *Service) Send(ctx context.Context, n *models.Notification) (res SendResult) {
	res.NotificationID = n.ID
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Send of notification %s panicked: %v", n.ID, r)
			res = SendResult{NotificationID: n.ID, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	log := s.logger.WithField("notification_id", n.ID).WithField("user_id", n.UserID)
	if n.IsExpired(s.now()) {
		log.Warnf("Notification expired at %s, delivering anyway", n.ExpiresAt.Format(time.RFC3339))
	}

	results := s.fanOut(ctx, n, n.Channels)
	now := s.now()
	for c, r := range results {
		n.RecordResult(c, r, now)
	}

	rec := models.NotificationRecord{Notification: *n, DeliveryResults: results, UpdatedAt: now}
	if err := s.store.InsertNotificationRecord(ctx, rec); err != nil {
		log.Errorf("Failed to persist notification: %v", err)
		return SendResult{NotificationID: n.ID, DeliveryResults: results, Error: err.Error()}
	}

	log.Infof("Notification sent via %d channel(s), %d failed", len(results), len(n.FailedChannels()))
	return SendResult{Success: true, NotificationID: n.ID, DeliveryResults: results}
}

// fanOut runs every channel concurrently and collects the results by channel.
func (s *Service) fanOut(ctx context.Context, n *models.Notification, channels []models.Channel) map[models.Channel]models.DeliveryResult {
	results := make(map[models.Channel]models.DeliveryResult, len(channels))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range channels {
		wg.Add(1)
		go func(c models.Channel) {
			defer wg.Done()
			r := s.dispatcher.Deliver(ctx, c, n)
			mu.Lock()
			results[c] = r
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// BulkResult summarizes a send-bulk call.
type BulkResult struct {
	Total   int          `json:"total"`
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
	Results []SendResult `json:"results"`
}

// SendBulk delivers the same content to every user in userIDs. Duplicate and
// empty ids are skipped.
func (s *Service) SendBulk(ctx context.Context, userIDs []string, p models.NotificationParams) BulkResult {
	seen := make(map[string]struct{}, len(userIDs))
	out := BulkResult{Results: []SendResult{}}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		params := p
		params.UserID = id
		res, err := s.CreateAndSend(ctx, params)
		if err != nil && res.Error == "" {
			res.Error = err.Error()
		}
		out.Total++
		if res.Success {
			out.Sent++
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// Retry re-sends the channels of a stored notification whose last attempt
// failed and updates the stored record.
func (s *Service) Retry(ctx context.Context, userID, notificationID string) (SendResult, error) {
	rec, err := s.store.GetNotificationRecord(ctx, userID, notificationID)
	if err != nil {
		return SendResult{}, err
	}
	failed := rec.FailedChannels()
	if len(failed) == 0 {
		return SendResult{}, ErrNothingToRetry
	}

	ctx = context.WithoutCancel(ctx)
	results := s.fanOut(ctx, &rec.Notification, failed)
	now := s.now()
	if rec.DeliveryResults == nil {
		rec.DeliveryResults = make(map[models.Channel]models.DeliveryResult, len(results))
	}
	for c, r := range results {
		rec.RecordResult(c, r, now)
		rec.DeliveryResults[c] = r
	}
	rec.UpdatedAt = now

	if err := s.store.ReplaceNotificationRecord(ctx, *rec); err != nil {
		s.logger.Errorf("Failed to persist retry of notification %s: %v", notificationID, err)
		return SendResult{NotificationID: notificationID, DeliveryResults: results, Error: err.Error()}, nil
	}
	s.logger.Infof("Retried %d channel(s) of notification %s", len(failed), notificationID)
	return SendResult{Success: true, NotificationID: notificationID, DeliveryResults: results}, nil
}

// HistoryQuery filters a user's notification history.
type HistoryQuery struct {
	Type       models.Type
	Channel    models.Channel
	UnreadOnly bool
	Limit      int
	Offset     int
}

type HistoryPage struct {
	Notifications []models.NotificationRecord `json:"notifications"`
	Total         int64                       `json:"total"`
	Unread        int64                       `json:"unread"`
	Limit         int                         `json:"limit"`
	Offset        int                         `json:"offset"`
}

// History returns the user's notifications, newest first.
func (s *Service) History(ctx context.Context, userID string, q HistoryQuery) (HistoryPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	offset := max(q.Offset, 0)

	filter := store.Filter{UserID: userID, Type: q.Type, Channel: q.Channel}
	if q.UnreadOnly {
		filter.Read = store.Bool(false)
	}

	list, err := s.store.FindNotifications(ctx, filter, store.FindOptions{Sort: store.NewestFirst, Limit: limit, Offset: offset})
	if err != nil {
		return HistoryPage{}, err
	}
	total, err := s.store.CountNotifications(ctx, filter)
	if err != nil {
		return HistoryPage{}, err
	}
	unread, err := s.store.CountNotifications(ctx, store.Filter{UserID: userID, Read: store.Bool(false)})
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Notifications: list, Total: total, Unread: unread, Limit: limit, Offset: offset}, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.UpdateNotificationFlags(ctx, notificationID, userID, store.FlagUpdate{Read: store.Bool(true)})
}

// MarkClicked flags the notification as clicked. A click implies the user
// has read it.
func (s *Service) MarkClicked(ctx context.Context, userID, notificationID string) error {
	return s.store.UpdateNotificationFlags(ctx, notificationID, userID, store.FlagUpdate{
		Read:    store.Bool(true),
		Clicked: store.Bool(true),
	})
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

// Stats summarizes a user's engagement.
type Stats struct {
	UserID            string                `json:"user_id"`
	Total             int64                 `json:"total"`
	Unread            int64                 `json:"unread"`
	Read              int64                 `json:"read"`
	Clicked           int64                 `json:"clicked"`
	ReadRate          float64               `json:"read_rate"`
	ClickRate         float64               `json:"click_rate"`
	ByType            map[models.Type]int64 `json:"by_type"`
	ActiveConnections int                   `json:"active_connections"`
}

func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	st := Stats{UserID: userID, ByType: make(map[models.Type]int64)}
	var err error
	if st.Total, err = s.store.CountNotifications(ctx, store.Filter{UserID: userID}); err != nil {
		return Stats{}, err
	}
	if st.Unread, err = s.store.CountNotifications(ctx, store.Filter{UserID: userID, Read: store.Bool(false)}); err != nil {
		return Stats{}, err
	}
	if st.Clicked, err = s.store.CountNotifications(ctx, store.Filter{UserID: userID, Clicked: store.Bool(true)}); err != nil {
		return Stats{}, err
	}
	st.Read = st.Total - st.Unread
	for _, t := range models.AllTypes {
		count, err := s.store.CountNotifications(ctx, store.Filter{UserID: userID, Type: t})
		if err != nil {
			return Stats{}, err
		}
		if count > 0 {
			st.ByType[t] = count
		}
	}
	if st.Total > 0 {
		st.ReadRate = percent(st.Read, st.Total)
		st.ClickRate = percent(st.Clicked, st.Total)
	}
	st.ActiveConnections = s.conns.CountForUser(userID)
	return st, nil
}

func percent(part, whole int64) float64 {
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

type ConnectionStatus struct {
	UserID            string                      `json:"user_id"`
	Connected         bool                        `json:"connected"`
	ActiveConnections int                         `json:"active_connections"`
	Connections       []realtime.ConnectionRecord `json:"connections"`
	TotalConnections  int                         `json:"total_connections"`
}

func (s *Service) ConnectionStatus(userID string) ConnectionStatus {
	count := s.conns.CountForUser(userID)
	return ConnectionStatus{
		UserID:            userID,
		Connected:         count > 0,
		ActiveConnections: count,
		Connections:       s.conns.Connections(userID),
		TotalConnections:  s.conns.CountTotal(),
	}
}
