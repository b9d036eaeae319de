package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Brokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
		RequestTopic string   `env:"KAFKA_REQUEST_TOPIC" envDefault:"notification_requests"`
		PushTopic    string   `env:"KAFKA_PUSH_TOPIC"`
		GroupID      string   `env:"KAFKA_GROUP_ID" envDefault:"notification-service"`
	}
	Store struct {
		Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
	}
	DB struct {
		DSN string `env:"DB_DSN"`
	}
	Mongo struct {
		URL            string        `env:"MONGODB_URL"`
		Database       string        `env:"MONGODB_DATABASE" envDefault:"mewayz"`
		ConnectTimeout time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	}
	Redis struct {
		URL     string `env:"REDIS_URL"`
		Channel string `env:"REDIS_REALTIME_CHANNEL" envDefault:"notifications:realtime"`
	}
	Email struct {
		Provider             string `env:"EMAIL_PROVIDER" envDefault:"smtp"`
		SMTPServer           string `env:"EMAIL_SMTP_SERVER"`
		SMTPPort             int    `env:"EMAIL_SMTP_PORT" envDefault:"587"`
		Username             string `env:"EMAIL_USERNAME"`
		Password             string `env:"EMAIL_PASSWORD"`
		FromName             string `env:"EMAIL_FROM_NAME" envDefault:"Mewayz"`
		FromAddress          string `env:"EMAIL_FROM_ADDRESS"`
		PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
		PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	}
	SMS struct {
		AccountSID string `env:"TWILIO_ACCOUNT_SID"`
		AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
		FromNumber string `env:"TWILIO_FROM_NUMBER"`
		RateLimit  int    `env:"SMS_RATE_LIMIT" envDefault:"5"`
	}
	Telegram struct {
		BotToken  string `env:"TELEGRAM_BOT_TOKEN"`
		RateLimit int    `env:"TELEGRAM_RATE_LIMIT" envDefault:"25"`
	}
	Webhook struct {
		URL     string        `env:"CHAT_WEBHOOK_URL"`
		Timeout time.Duration `env:"CHAT_WEBHOOK_TIMEOUT" envDefault:"10s"`
	}
	API struct {
		Port     string `env:"API_PORT" envDefault:":8080"`
		BasePath string `env:"API_BASE_PATH" envDefault:"/api/v1"`
	}
	WebSocket struct {
		MaxConnectionsPerUser int           `env:"WS_MAX_CONNECTIONS_PER_USER" envDefault:"10"`
		PingInterval          time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
		ReadLimit             int64         `env:"WS_READ_LIMIT" envDefault:"4096"`
	}
	Notification struct {
		QueueSize      int           `env:"QUEUE_SIZE" envDefault:"500"`
		PollInterval   time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
		ChannelTimeout time.Duration `env:"CHANNEL_TIMEOUT" envDefault:"10s"`
	}
	Logging struct {
		Dir   string `env:"LOG_DIR" envDefault:"logs"`
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	missing := []string{}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case DriverMongo:
		if c.Mongo.URL == "" {
			missing = append(missing, "MONGODB_URL")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Email.Provider {
	case "smtp":
	case "postmark":
		if c.Email.PostmarkServerToken == "" {
			missing = append(missing, "POSTMARK_SERVER_TOKEN")
		}
		if c.Email.PostmarkAccountToken == "" {
			missing = append(missing, "POSTMARK_ACCOUNT_TOKEN")
		}
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.Email.Provider)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}
	return nil
}
