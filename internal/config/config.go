package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"production"`

	// ----------------------------
	// HTTP
	// ----------------------------
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"6012"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Notify API
	// ----------------------------
	APIHostName       string        `envconfig:"API_HOST_NAME" default:"http://localhost:6011"`
	AdminClientID     string        `envconfig:"ADMIN_CLIENT_USER_NAME" default:"notify-admin"`
	AdminClientSecret string        `envconfig:"ADMIN_CLIENT_SECRET" required:"true"`
	APITimeout        time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	APIRateLimit      int           `envconfig:"API_RATE_LIMIT" default:"50"`
	APIRetryAttempts  int           `envconfig:"API_RETRY_ATTEMPTS" default:"3"`

	// ----------------------------
	// Content API
	// ----------------------------
	ContentAPIURL   string        `envconfig:"GC_ARTICLES_API" default:"http://localhost:8888"`
	ContentTimeout  time.Duration `envconfig:"CONTENT_TIMEOUT" default:"3s"`
	ContentCacheTTL time.Duration `envconfig:"CONTENT_CACHE_TTL" default:"1h"`

	// ----------------------------
	// Redis
	// ----------------------------
	RedisURL     string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	CacheTimeout time.Duration `envconfig:"CACHE_TIMEOUT" default:"2s"`

	// ----------------------------
	// Sessions
	// ----------------------------
	SessionBackend      string        `envconfig:"SESSION_BACKEND" default:"redis"`
	SessionTTL          time.Duration `envconfig:"PERMANENT_SESSION_LIFETIME" default:"8h"`
	SessionCookieName   string        `envconfig:"SESSION_COOKIE_NAME" default:"notify_admin_session"`
	SessionCookieSecure bool          `envconfig:"SESSION_COOKIE_SECURE" default:"true"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`

	// ----------------------------
	// Uploads
	// ----------------------------
	UploadBackend      string        `envconfig:"UPLOAD_STORAGE_BACKEND" default:"s3"`
	UploadBucket       string        `envconfig:"CSV_UPLOAD_BUCKET_NAME" default:"notification-alpha-canada-ca-csv-upload"`
	AWSRegion          string        `envconfig:"AWS_REGION" default:"ca-central-1"`
	S3Endpoint         string        `envconfig:"S3_ENDPOINT" default:""`
	S3AccessKeyID      string        `envconfig:"AWS_ACCESS_KEY_ID" default:""`
	S3SecretKey        string        `envconfig:"AWS_SECRET_ACCESS_KEY" default:""`
	S3UsePathStyle     bool          `envconfig:"S3_USE_PATH_STYLE" default:"false"`
	LocalUploadPath    string        `envconfig:"LOCAL_UPLOAD_PATH" default:"./uploads"`
	BlobTimeout        time.Duration `envconfig:"BLOB_TIMEOUT" default:"30s"`
	MetadataBudget     int           `envconfig:"UPLOAD_METADATA_BUDGET" default:"2048"`
	CSVMaxRows         int           `envconfig:"CSV_MAX_ROWS" default:"50000"`
	PhoneHomeRegion    string        `envconfig:"PHONE_HOME_REGION" default:"CA"`
	MaxScheduleHorizon time.Duration `envconfig:"MAX_SCHEDULE_HORIZON" default:"96h"`

	// ----------------------------
	// Feature flags
	// ----------------------------
	AnnualLimitEnforced bool `envconfig:"FF_ANNUAL_LIMIT" default:"false"`
	BulkSendAllowed     bool `envconfig:"FF_BULK_SEND" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the backend selections and the settings each backend needs.
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case "redis":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	switch c.UploadBackend {
	case "s3":
		if strings.TrimSpace(c.UploadBucket) == "" {
			return fmt.Errorf("CSV_UPLOAD_BUCKET_NAME is required when UPLOAD_STORAGE_BACKEND is s3")
		}
	case "local":
	default:
		return fmt.Errorf("unknown UPLOAD_STORAGE_BACKEND %q", c.UploadBackend)
	}

	if c.MetadataBudget <= 0 {
		return fmt.Errorf("UPLOAD_METADATA_BUDGET must be positive")
	}
	if c.CSVMaxRows <= 0 {
		return fmt.Errorf("CSV_MAX_ROWS must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
