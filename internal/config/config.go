package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// SQS config (audit queue)
	SQSRegion   string
	SQSQueueURL string

	// AWS Services
	AWSRegion    string
	SESFromEmail string
	SNSRegion    string // AWS region for SNS (SMS alerts)

	// Audit alert destinations. Empty value disables that channel.
	AlertEmailTo    string
	AlertSMSNumber  string
	AlertWebhookURL string

	// Webhook config
	WebhookTimeout int // Timeout for webhook alert requests in seconds

	// Pipeline knobs
	AmountMin        decimal.Decimal // exclusive lower bound for admitted amounts
	AmountMax        decimal.Decimal // exclusive upper bound for admitted amounts
	DuplicateWindow  int             // duplicate detection window in seconds, each side
	DefaultCurrency  string          // ISO 4217 code for unrecognized currency tokens
	MinBodyLength    int             // bodies shorter than this never classify as payments
	AuditPollSeconds int             // audit worker poll interval when SQS is not configured
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "camiloreynaga",
		DBPassword: "",
		DBName:     "yape_notifier",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion:    "us-east-1",
		SESFromEmail: "alerts@yape-notifier.local",

		AmountMin:        decimal.RequireFromString("0.01"),
		AmountMax:        decimal.RequireFromString("1000000"),
		DuplicateWindow:  5,
		DefaultCurrency:  "PEN",
		MinBodyLength:    12,
		AuditPollSeconds: 5,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// SNS config for SMS alerts
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	// Alert destinations
	if to := os.Getenv("ALERT_EMAIL_TO"); to != "" {
		cfg.AlertEmailTo = to
	}

	if number := os.Getenv("ALERT_SMS_NUMBER"); number != "" {
		cfg.AlertSMSNumber = number
	}

	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		cfg.AlertWebhookURL = url
	}

	if timeout := os.Getenv("WEBHOOK_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
		}
		cfg.WebhookTimeout = t
	} else {
		cfg.WebhookTimeout = 30 // default 30 seconds
	}

	// Pipeline knobs
	if raw := os.Getenv("AMOUNT_MIN"); raw != "" {
		min, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid AMOUNT_MIN: %w", err)
		}
		cfg.AmountMin = min
	}

	if raw := os.Getenv("AMOUNT_MAX"); raw != "" {
		max, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid AMOUNT_MAX: %w", err)
		}
		cfg.AmountMax = max
	}

	if cfg.AmountMin.GreaterThanOrEqual(cfg.AmountMax) {
		return nil, fmt.Errorf("AMOUNT_MIN %s must be below AMOUNT_MAX %s", cfg.AmountMin, cfg.AmountMax)
	}

	if raw := os.Getenv("DUPLICATE_WINDOW_SECONDS"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid DUPLICATE_WINDOW_SECONDS: %q", raw)
		}
		cfg.DuplicateWindow = w
	}

	if code := os.Getenv("DEFAULT_CURRENCY"); code != "" {
		if len(code) != 3 {
			return nil, fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter ISO 4217 code, got %q", code)
		}
		cfg.DefaultCurrency = code
	}

	if raw := os.Getenv("MIN_BODY_LENGTH"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid MIN_BODY_LENGTH: %q", raw)
		}
		cfg.MinBodyLength = n
	}

	if raw := os.Getenv("AUDIT_POLL_SECONDS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid AUDIT_POLL_SECONDS: %q", raw)
		}
		cfg.AuditPollSeconds = n
	}

	return cfg, nil
}
