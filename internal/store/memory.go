package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"mewayz-notifications/internal/models"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*models.NotificationRecord // notification id -> record
	order    []string                              // insertion order of records
	history  map[string]*models.Notification       // notification id -> in-app copy
	contacts map[string]map[models.Channel]string  // user id -> channel -> address
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*models.NotificationRecord),
		history:  make(map[string]*models.Notification),
		contacts: make(map[string]map[models.Channel]string),
	}
}

func (s *MemoryStore) InsertNotificationRecord(_ context.Context, rec models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) ReplaceNotificationRecord(_ context.Context, rec models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		return ErrNotFound
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) GetNotificationRecord(_ context.Context, userID, notificationID string) (*models.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[notificationID]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneRecord(*rec), nil
}

func (s *MemoryStore) InsertNotificationHistoryRecord(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[n.ID] = n.Clone()
	return nil
}

// History returns the in-app copy of a notification, if any.
func (s *MemoryStore) History(notificationID string) (*models.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.history[notificationID]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

func (s *MemoryStore) UpdateNotificationFlags(_ context.Context, notificationID, userID string, flags FlagUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[notificationID]
	if !ok || rec.UserID != userID {
		return ErrNotFound
	}
	applyFlags(&rec.Notification, flags)
	rec.UpdatedAt = time.Now().UTC()
	if h, ok := s.history[notificationID]; ok {
		applyFlags(h, flags)
	}
	return nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	read := FlagUpdate{Read: Bool(true)}
	for id, rec := range s.records {
		if rec.UserID != userID || rec.Read {
			continue
		}
		applyFlags(&rec.Notification, read)
		if h, ok := s.history[id]; ok {
			applyFlags(h, read)
		}
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) CountNotifications(_ context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.records {
		if f.matches(&rec.Notification) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindNotifications(_ context.Context, f Filter, opts FindOptions) ([]models.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Clone(s.order)
	if opts.Sort == NewestFirst {
		slices.Reverse(ids)
	}

	out := []models.NotificationRecord{}
	skipped := 0
	for _, id := range ids {
		rec := s.records[id]
		if !f.matches(&rec.Notification) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, *cloneRecord(*rec))
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetContactAddress(_ context.Context, userID string, channel models.Channel) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr := s.contacts[userID][channel]
	if addr == "" {
		return "", ErrContactNotFound
	}
	return addr, nil
}

func (s *MemoryStore) UpsertContactPoint(_ context.Context, cp models.ContactPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[cp.UserID]; !ok {
		s.contacts[cp.UserID] = make(map[models.Channel]string)
	}
	s.contacts[cp.UserID][cp.Channel] = cp.Address
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (f Filter) matches(n *models.Notification) bool {
	if f.UserID != "" && n.UserID != f.UserID {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Channel != "" && !slices.Contains(n.Channels, f.Channel) {
		return false
	}
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	if f.Clicked != nil && n.Clicked != *f.Clicked {
		return false
	}
	return true
}

func applyFlags(n *models.Notification, flags FlagUpdate) {
	if flags.Read != nil {
		n.Read = *flags.Read
	}
	if flags.Clicked != nil {
		n.Clicked = *flags.Clicked
	}
}

func cloneRecord(rec models.NotificationRecord) *models.NotificationRecord {
	out := models.NotificationRecord{
		Notification:    *rec.Notification.Clone(),
		DeliveryResults: maps.Clone(rec.DeliveryResults),
		UpdatedAt:       rec.UpdatedAt,
	}
	return &out
}
