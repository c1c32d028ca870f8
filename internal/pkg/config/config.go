package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ClientHub/internal/pkg/env"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Cache    CacheConfig
	SMTP     SMTPConfig
	Mail     MailConfig
	Webhook  WebhookConfig
	Notify   NotifyConfig
	Archive  ArchiveConfig
	Log      LogConfig
}

type AppConfig struct {
	Env  string
	Host string
	Port string
	// BaseURL is used for links inside notification emails.
	BaseURL string
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// DSN returns the go-sql-driver/mysql data source name used by GORM.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MigrateURL returns the golang-migrate database URL.
func (d DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type CacheConfig struct {
	Host     string
	Port     string
	Password string
}

func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Enabled reports whether an SMTP host is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

type MailConfig struct {
	From    string
	ReplyTo string
	// AdminRecipients receive admin notifications in addition to admin users.
	AdminRecipients []string
}

type WebhookConfig struct {
	Timeout       time.Duration
	LockTTL       time.Duration
	RateLimit     int
	RateWindow    time.Duration
	DefaultTenant string

	// RequireConnectSignature refuses unsigned DocuSign callbacks.
	RequireConnectSignature bool
}

type NotifyConfig struct {
	SendDelay       time.Duration
	DigestThreshold int
	AutoDrain       bool
}

type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type LogConfig struct {
	FilePath string
	Level    string
}

// Load assembles the configuration from the environment. env.SetupEnvFile
// should run first when a .env file is used.
func Load() *Config {
	return &Config{
		App: AppConfig{
			Env:     env.GetEnv("APP_ENV", "prod"),
			Host:    env.GetEnv("APP_HOST", "0.0.0.0"),
			Port:    env.GetEnv("APP_PORT", "4000"),
			BaseURL: env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"),
		},
		Database: DatabaseConfig{
			User:     env.GetEnv("DB_USER", "clienthub"),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			Name:     env.GetEnv("DB_NAME", "clienthub"),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		SMTP: SMTPConfig{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetEnvInt("SMTP_PORT", 587),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
		},
		Mail: MailConfig{
			From:            env.GetEnv("SMTP_SENDER", "no-reply@localhost"),
			ReplyTo:         env.GetEnv("MAIL_REPLY_TO", ""),
			AdminRecipients: splitList(env.GetEnv("ADMIN_EMAILS", "")),
		},
		Webhook: WebhookConfig{
			Timeout:       env.GetEnvDuration("WEBHOOK_TIMEOUT", 15*time.Second),
			LockTTL:       env.GetEnvDuration("WEBHOOK_LOCK_TTL", 30*time.Second),
			RateLimit:     env.GetEnvInt("WEBHOOK_RATE_LIMIT", 120),
			RateWindow:    env.GetEnvDuration("WEBHOOK_RATE_WINDOW", time.Minute),
			DefaultTenant: env.GetEnv("DEFAULT_TENANT", "default"),

			RequireConnectSignature: env.GetEnvBool("DOCUSIGN_REQUIRE_SIGNATURE", false),
		},
		Notify: NotifyConfig{
			SendDelay:       env.GetEnvDuration("NOTIFY_SEND_DELAY", time.Second),
			DigestThreshold: env.GetEnvInt("NOTIFY_DIGEST_THRESHOLD", 3),
			AutoDrain:       env.GetEnvBool("NOTIFY_AUTO_DRAIN", true),
		},
		Archive: ArchiveConfig{
			Enabled:         env.GetEnvBool("S3_ARCHIVE_ENABLED", false),
			Bucket:          env.GetEnv("S3_ARCHIVE_BUCKET", "clienthub-signatures"),
			Region:          env.GetEnv("S3_REGION", "us-east-1"),
			EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
			AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          env.GetEnv("S3_ARCHIVE_PREFIX", "envelopes"),
		},
		Log: LogConfig{
			FilePath: env.GetEnv("LOG_FILE", "logs/clienthub.log"),
			Level:    env.GetEnv("LOG_LEVEL", "info"),
		},
	}
}

// IsProduction reports whether APP_ENV is anything other than dev.
func (c *Config) IsProduction() bool {
	return c.App.Env != "dev"
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
