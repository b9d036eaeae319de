// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/store"
)

const (
	notificationsCollection = "notifications"
	historyCollection       = "notification_history"
	contactsCollection      = "contact_points"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client        *mongo.Client
	notifications *mongo.Collection
	history       *mongo.Collection
	contacts      *mongo.Collection
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, url, database string, connectTimeout time.Duration) (*Store, error) {
	client, err := mongo.Connect(
		options.Client().
			ApplyURI(url).
			SetConnectTimeout(connectTimeout).
			SetRetryWrites(true).
			SetRetryReads(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:        client,
		notifications: db.Collection(notificationsCollection),
		history:       db.Collection(historyCollection),
		contacts:      db.Collection(contactsCollection),
	}, nil
}

// EnsureIndexes creates the lookup indexes used by history queries and contact resolution.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	byUser := mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}}
	if _, err := s.notifications.Indexes().CreateOne(ctx, byUser); err != nil {
		return fmt.Errorf("failed to create notifications index: %w", err)
	}
	if _, err := s.history.Indexes().CreateOne(ctx, byUser); err != nil {
		return fmt.Errorf("failed to create history index: %w", err)
	}
	contact := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "channel", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.contacts.Indexes().CreateOne(ctx, contact); err != nil {
		return fmt.Errorf("failed to create contact_points index: %w", err)
	}
	return nil
}

func (s *Store) InsertNotificationRecord(ctx context.Context, rec models.NotificationRecord) error {
	if _, err := s.notifications.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *Store) ReplaceNotificationRecord(ctx context.Context, rec models.NotificationRecord) error {
	res, err := s.notifications.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec)
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", rec.ID, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetNotificationRecord(ctx context.Context, userID, notificationID string) (*models.NotificationRecord, error) {
	var rec models.NotificationRecord
	err := s.notifications.FindOne(ctx, bson.M{"_id": notificationID, "user_id": userID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification %s: %w", notificationID, err)
	}
	return &rec, nil
}

func (s *Store) InsertNotificationHistoryRecord(ctx context.Context, n models.Notification) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.history.ReplaceOne(ctx, bson.M{"_id": n.ID}, n, opts); err != nil {
		return fmt.Errorf("failed to create notification history: %w", err)
	}
	return nil
}

func (s *Store) UpdateNotificationFlags(ctx context.Context, notificationID, userID string, flags store.FlagUpdate) error {
	set := bson.M{}
	if flags.Read != nil {
		set["read"] = *flags.Read
	}
	if flags.Clicked != nil {
		set["clicked"] = *flags.Clicked
	}
	if len(set) == 0 {
		return nil
	}

	filter := bson.M{"_id": notificationID, "user_id": userID}
	historySet := bson.M{}
	for k, v := range set {
		historySet[k] = v
	}
	set["updated_at"] = time.Now().UTC()

	res, err := s.notifications.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update notification flags: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	if _, err := s.history.UpdateOne(ctx, filter, bson.M{"$set": historySet}); err != nil {
		return fmt.Errorf("failed to update notification history flags: %w", err)
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{"user_id": userID, "read": false}
	res, err := s.notifications.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read for user %s: %w", userID, err)
	}
	if _, err := s.history.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}}); err != nil {
		return 0, fmt.Errorf("failed to mark history read for user %s: %w", userID, err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) CountNotifications(ctx context.Context, f store.Filter) (int64, error) {
	n, err := s.notifications.CountDocuments(ctx, filterDoc(f))
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

func (s *Store) FindNotifications(ctx context.Context, f store.Filter, opts store.FindOptions) ([]models.NotificationRecord, error) {
	order := -1
	if opts.Sort == store.OldestFirst {
		order = 1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: order}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.notifications.Find(ctx, filterDoc(f), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	list := []models.NotificationRecord{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return list, nil
}

func (s *Store) UpsertContactPoint(ctx context.Context, cp models.ContactPoint) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"address": cp.Address, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	filter := bson.M{"user_id": cp.UserID, "channel": cp.Channel}
	if _, err := s.contacts.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to upsert contact point: %w", err)
	}
	return nil
}

func (s *Store) GetContactAddress(ctx context.Context, userID string, channel models.Channel) (string, error) {
	var cp models.ContactPoint
	err := s.contacts.FindOne(ctx, bson.M{"user_id": userID, "channel": channel}).Decode(&cp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", store.ErrContactNotFound
		}
		return "", fmt.Errorf("failed to get contact point for user %s: %w", userID, err)
	}
	if cp.Address == "" {
		return "", store.ErrContactNotFound
	}
	return cp.Address, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func filterDoc(f store.Filter) bson.M {
	doc := bson.M{}
	if f.UserID != "" {
		doc["user_id"] = f.UserID
	}
	if f.Type != "" {
		doc["type"] = f.Type
	}
	if f.Channel != "" {
		doc["channels"] = f.Channel
	}
	if f.Read != nil {
		doc["read"] = *f.Read
	}
	if f.Clicked != nil {
		doc["clicked"] = *f.Clicked
	}
	return doc
}
