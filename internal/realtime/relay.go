package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mewayz-notifications/internal/logging"
)

// Relay forwards realtime payloads between service instances over Redis
// pub/sub so a user connected to another instance still receives them.
type Relay struct {
	rdb      *redis.Client
	channel  string
	origin   string
	registry *Registry
	logger   *logging.Logger
}

type envelope struct {
	Origin  string          `json:"origin"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// NewRelay connects to Redis at url and verifies the connection.
func NewRelay(ctx context.Context, url, channel string, registry *Registry, logger *logging.Logger) (*Relay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Relay{
		rdb:      rdb,
		channel:  channel,
		origin:   uuid.NewString(),
		registry: registry,
		logger:   logger,
	}, nil
}

// Publish announces payload for userID to the other instances.
func (r *Relay) Publish(ctx context.Context, userID string, payload []byte) error {
	msg, err := json.Marshal(envelope{Origin: r.origin, UserID: userID, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}

// Run delivers payloads published by other instances to local connections
// until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Infof("Relay subscribed to %s (origin %s)", r.channel, r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

// handle returns the number of local connections reached.
func (r *Relay) handle(raw []byte) int {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Warnf("Dropping malformed relay message: %v", err)
		return 0
	}
	if env.Origin == r.origin || env.UserID == "" {
		return 0
	}
	return r.registry.SendPayload(env.UserID, env.Payload)
}

func (r *Relay) Close() error {
	return r.rdb.Close()
}
