package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Queuer accepts notification requests. *notification.Service satisfies it.
type Queuer interface {
	CreateAndQueue(ctx context.Context, p models.NotificationParams) (*models.Notification, error)
}

// Consumer turns messages on the request topic into queued notifications.
type Consumer struct {
	reader *kafka.Reader
	svc    Queuer
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewConsumer(cfg Config, svc Queuer, logger *logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer needs at least one broker")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
		MaxWait:        time.Second,
		MaxBytes:       10e6,
	})
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{reader: reader, svc: svc, logger: logger, ctx: ctx, cancel: cancel}, nil
}

func (c *Consumer) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on topic %s", c.reader.Config().Topic)

		for {
			msg, err := c.reader.FetchMessage(c.ctx)
			if err != nil {
				if c.ctx.Err() != nil {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}

			if err := c.handle(c.ctx, msg.Value); err != nil {
				c.logger.WithField("offset", msg.Offset).Errorf("Dropping message: %v", err)
			}
			if err := c.reader.CommitMessages(c.ctx, msg); err != nil && c.ctx.Err() == nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

// handle decodes one request and queues it. Invalid messages are reported
// and committed so they are not redelivered.
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var req models.NotificationRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return fmt.Errorf("unmarshal message failed: %w", err)
	}
	params, err := req.Params()
	if err != nil {
		return err
	}
	n, err := c.svc.CreateAndQueue(ctx, params)
	if err != nil {
		return err
	}
	c.logger.Request(n.ID).Infof("Processed Kafka message for user %s", n.UserID)
	return nil
}

func (c *Consumer) Close() error {
	c.cancel()
	return c.reader.Close()
}
