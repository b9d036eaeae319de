package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/providers"
)

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PushProducer publishes push commands for the push gateway. Messages are
// keyed by user so one user's pushes stay ordered within a partition.
type PushProducer struct {
	writer MessageWriter
	logger *logging.Logger
}

func NewPushProducer(brokers []string, topic string, logger *logging.Logger) (*PushProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("push producer needs brokers and a topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &PushProducer{writer: w, logger: logger}, nil
}

func (p *PushProducer) PublishPush(ctx context.Context, cmd providers.PushCommand) error {
	value, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal push command: %w", err)
	}
	msg := kafka.Message{Key: []byte(cmd.UserID), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish push command for notification %s: %w", cmd.NotificationID, err)
	}
	p.logger.Debugf("Push command for notification %s published", cmd.NotificationID)
	return nil
}

func (p *PushProducer) Close() error {
	return p.writer.Close()
}
