package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	MailProviderSMTP    = "smtp"
	MailProviderWebhook = "webhook"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS,default=10"`
	DBMaxIdleConns int `env:"DB_MAX_IDLE_CONNS,default=5"`

	Timezone         string `env:"TIMEZONE,default=UTC"`
	SchedulerEnabled bool   `env:"SCHEDULER_ENABLED,default=true"`
	DailySendHour    int    `env:"DAILY_SEND_HOUR,default=7"`
	DailySendMinute  int    `env:"DAILY_SEND_MINUTE,default=0"`

	MailProvider        string        `env:"MAIL_PROVIDER,default=smtp"`
	SMTPHost            string        `env:"SMTP_HOST"`
	SMTPPort            int           `env:"SMTP_PORT,default=587"`
	SMTPUsername        string        `env:"SMTP_USERNAME"`
	SMTPPassword        string        `env:"SMTP_PASSWORD"`
	SMTPImplicitTLS     bool          `env:"SMTP_IMPLICIT_TLS,default=false"`
	MailFrom            string        `env:"MAIL_FROM"`
	MailFromName        string        `env:"MAIL_FROM_NAME,default=DailyDose"`
	MailWebhookURL      string        `env:"MAIL_WEBHOOK_URL"`
	MailWebhookToken    string        `env:"MAIL_WEBHOOK_TOKEN"`
	MailSendTimeout     time.Duration `env:"MAIL_SEND_TIMEOUT,default=10s"`
	MailRateLimitPerSec int           `env:"MAIL_RATE_LIMIT_PER_SEC,default=10"`
	MailRateLimitShared bool          `env:"MAIL_RATE_LIMIT_SHARED,default=false"`

	MailBreakerFailures    int           `env:"MAIL_BREAKER_FAILURES,default=5"`
	MailBreakerOpenTimeout time.Duration `env:"MAIL_BREAKER_OPEN_TIMEOUT,default=30s"`

	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY,default=1"`
	RandomCooldown      time.Duration `env:"RANDOM_COOLDOWN,default=10s"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.MailProvider = strings.ToLower(strings.TrimSpace(cfg.MailProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DailySendHour < 0 || c.DailySendHour > 23 {
		return fmt.Errorf("DAILY_SEND_HOUR must be between 0 and 23, got %d", c.DailySendHour)
	}
	if c.DailySendMinute < 0 || c.DailySendMinute > 59 {
		return fmt.Errorf("DAILY_SEND_MINUTE must be between 0 and 59, got %d", c.DailySendMinute)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.MailSendTimeout <= 0 {
		return fmt.Errorf("MAIL_SEND_TIMEOUT must be positive")
	}
	if c.MailBreakerFailures < 1 {
		return fmt.Errorf("MAIL_BREAKER_FAILURES must be at least 1, got %d", c.MailBreakerFailures)
	}

	switch c.MailProvider {
	case MailProviderSMTP:
		if strings.TrimSpace(c.SMTPHost) == "" {
			return fmt.Errorf("SMTP_HOST is required for smtp mail provider")
		}
		if strings.TrimSpace(c.MailFrom) == "" {
			return fmt.Errorf("MAIL_FROM is required for smtp mail provider")
		}
	case MailProviderWebhook:
		if strings.TrimSpace(c.MailWebhookURL) == "" {
			return fmt.Errorf("MAIL_WEBHOOK_URL is required for webhook mail provider")
		}
	default:
		return fmt.Errorf("unsupported MAIL_PROVIDER %q", c.MailProvider)
	}

	return nil
}

// Location resolves the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
