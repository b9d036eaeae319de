package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mewayz-notifications/internal/api"
	"mewayz-notifications/internal/config"
	"mewayz-notifications/internal/db"
	"mewayz-notifications/internal/kafka"
	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/mongostore"
	"mewayz-notifications/internal/notification"
	"mewayz-notifications/internal/providers"
	"mewayz-notifications/internal/realtime"
	"mewayz-notifications/internal/store"
	"mewayz-notifications/pkg/email"
	"mewayz-notifications/pkg/sms"
	"mewayz-notifications/pkg/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Store initialization failed: %v", err)
	}
	defer st.Close()

	registry := realtime.NewRegistry(logger, cfg.WebSocket.MaxConnectionsPerUser)

	var relay providers.Publisher
	if cfg.Redis.URL != "" {
		r, err := realtime.NewRelay(ctx, cfg.Redis.URL, cfg.Redis.Channel, registry, logger)
		if err != nil {
			logger.Fatalf("Redis relay initialization failed: %v", err)
		}
		defer r.Close()
		go func() {
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("Redis relay stopped: %v", err)
			}
		}()
		relay = r
	}

	dispatcher := providers.NewDispatcher(logger, cfg.Notification.ChannelTimeout)
	dispatcher.Register(models.ChannelRealtime, providers.NewRealtime(registry, relay, logger))
	dispatcher.Register(models.ChannelInApp, providers.NewInApp(st))

	sender, err := emailSender(cfg)
	if err != nil {
		logger.Fatalf("Email sender initialization failed: %v", err)
	}
	if sender != nil {
		dispatcher.Register(models.ChannelEmail, providers.NewEmail(st, sender, logger))
	} else {
		logger.Warn("No email provider configured; email channel disabled")
	}

	var texts providers.TextSender
	if cfg.SMS.AccountSID != "" && cfg.SMS.AuthToken != "" {
		texts = sms.NewClient(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber, cfg.SMS.RateLimit)
	}
	dispatcher.Register(models.ChannelSMS, providers.NewSMS(st, texts, logger))

	var pushes providers.PushPublisher
	if cfg.Kafka.PushTopic != "" && len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewPushProducer(cfg.Kafka.Brokers, cfg.Kafka.PushTopic, logger)
		if err != nil {
			logger.Fatalf("Push producer initialization failed: %v", err)
		}
		defer p.Close()
		pushes = p
	}
	dispatcher.Register(models.ChannelPush, providers.NewPush(st, pushes, logger))

	chatOpts := providers.ChatWebhookOptions{WebhookURL: cfg.Webhook.URL, Timeout: cfg.Webhook.Timeout}
	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.RateLimit)
		if err != nil {
			logger.Fatalf("Telegram bot initialization failed: %v", err)
		}
		chatOpts.Bot = bot
	}
	dispatcher.Register(models.ChannelChatWebhook, providers.NewChatWebhook(st, chatOpts, logger))

	svc := notification.New(st, dispatcher, registry, logger, notification.Options{
		QueueSize:    cfg.Notification.QueueSize,
		PollInterval: cfg.Notification.PollInterval,
	})
	var wg sync.WaitGroup
	svc.Start(&wg)

	var consumer *kafka.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err = kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.RequestTopic,
			GroupID: cfg.Kafka.GroupID,
		}, svc, logger)
		if err != nil {
			logger.Fatalf("Kafka consumer initialization failed: %v", err)
		}
		consumer.Start(&wg)
	}

	go realtime.Keepalive(ctx, registry, cfg.WebSocket.PingInterval, logger)

	router := api.NewRouter(api.Deps{Service: svc, Registry: registry, Store: st}, logger, cfg)
	server := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	svc.Stop()
	wg.Wait()
	logger.Info("Notification service stopped")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		s, err := mongostore.New(ctx, cfg.Mongo.URL, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		d, err := db.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		if err := d.Migrate(ctx); err != nil {
			d.Close()
			return nil, err
		}
		return d, nil
	}
}

func emailSender(cfg config.Config) (email.Sender, error) {
	switch cfg.Email.Provider {
	case "postmark":
		return email.NewPostmarkSender(cfg.Email.PostmarkServerToken, cfg.Email.PostmarkAccountToken, cfg.Email.FromAddress)
	default:
		if cfg.Email.SMTPServer == "" {
			return nil, nil
		}
		return email.NewSMTPSender(cfg.Email.SMTPServer, cfg.Email.SMTPPort,
			cfg.Email.Username, cfg.Email.Password, cfg.Email.FromAddress, cfg.Email.FromName), nil
	}
}
