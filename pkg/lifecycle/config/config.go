package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/EGF2/file/pkg/lifecycle"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:          "8000",
		Environment:   "development",
		LogLevel:      "info",
		DatabaseURL:   "memory",
		StorageURL:    "memory://",
		AsyncDispatch: true,
		S3: S3Config{
			Region:          "us-east-1",
			PresignDuration: 900,
			SSEAlgorithm:    "AES256",
			ACL:             "public-read",
		},
		GC: GCConfig{
			Enabled:      true,
			Interval:     24 * time.Hour,
			Retention:    24 * time.Hour,
			PageSize:     100,
			PageAttempts: 3,
		},
		TypeCache: TypeCacheConfig{
			Size: 10000,
			TTL:  10 * time.Minute,
		},
		Images: ImageConfig{
			FetchTimeout: 60 * time.Second,
			MaxBytes:     50 << 20,
			JPEGQuality:  85,
		},
		Kinds: Kinds{},
	}
}

// ServerConfig represents the configuration of the file service
type ServerConfig struct {
	Port        string `yaml:"port" env:"FILE_PORT" env-description:"HTTP listen port"`
	Environment string `yaml:"environment" env:"FILE_ENVIRONMENT" env-description:"development, production or testing"`
	LogLevel    string `yaml:"log_level" env:"FILE_LOG_LEVEL" env-description:"debug, info, warn or error"`

	// DatabaseURL is "memory" or a postgres:// DSN
	DatabaseURL string `yaml:"database_url" env:"FILE_DATABASE_URL" env-description:"metadata store: memory or postgres://..."`
	AutoMigrate bool   `yaml:"auto_migrate" env:"FILE_AUTO_MIGRATE" env-description:"apply postgres migrations on startup"`

	// StorageURL is "memory://[bucket]" or "s3://bucket[?region=...]"
	StorageURL string   `yaml:"storage_url" env:"FILE_STORAGE_URL" env-description:"object storage: memory://[bucket] or s3://bucket"`
	S3         S3Config `yaml:"s3"`

	// AsyncDispatch runs event handlers in the background
	AsyncDispatch bool `yaml:"async_dispatch" env:"FILE_ASYNC_DISPATCH" env-description:"run event handlers in the background"`

	GC        GCConfig        `yaml:"gc"`
	TypeCache TypeCacheConfig `yaml:"type_cache"`
	Images    ImageConfig     `yaml:"images"`

	// Kinds maps an asset kind to the derivative sizes requested for it
	Kinds Kinds `yaml:"kinds" env:"FILE_KINDS" env-description:"JSON object of kind to [{width,height}]"`
}

// S3Config configures the S3 object store
type S3Config struct {
	Region                 string `yaml:"region" env:"AWS_REGION"`
	Endpoint               string `yaml:"endpoint" env:"FILE_S3_ENDPOINT" env-description:"custom endpoint for S3-compatible services"`
	AccessKeyID            string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey        string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle           bool   `yaml:"use_path_style" env:"FILE_S3_USE_PATH_STYLE"`
	PresignDuration        int    `yaml:"presign_duration" env:"FILE_S3_PRESIGN_SECONDS"`
	SSEAlgorithm           string `yaml:"sse_algorithm" env:"FILE_S3_SSE" env-description:"AES256, aws:kms or none"`
	SSEKMSKeyID            string `yaml:"sse_kms_key_id" env:"FILE_S3_SSE_KMS_KEY_ID"`
	ACL                    string `yaml:"acl" env:"FILE_S3_ACL"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket" env:"FILE_S3_CREATE_BUCKET"`
}

// GCConfig configures the garbage collector
type GCConfig struct {
	Enabled       bool          `yaml:"enabled" env:"FILE_GC_ENABLED" env-description:"run the garbage collector inside serve"`
	Interval      time.Duration `yaml:"interval" env:"FILE_GC_INTERVAL"`
	Retention     time.Duration `yaml:"retention" env:"FILE_GC_RETENTION" env-description:"age after which standalone files are deleted"`
	PageSize      int           `yaml:"page_size" env:"FILE_GC_PAGE_SIZE"`
	PageAttempts  int           `yaml:"page_attempts" env:"FILE_GC_PAGE_ATTEMPTS"`
	DirectCascade bool          `yaml:"direct_cascade" env:"FILE_GC_DIRECT_CASCADE" env-description:"delete storage objects without waiting for a delete event"`
}

// TypeCacheConfig configures the entity type LRU; Size 0 disables it
type TypeCacheConfig struct {
	Size int           `yaml:"size" env:"FILE_TYPE_CACHE_SIZE"`
	TTL  time.Duration `yaml:"ttl" env:"FILE_TYPE_CACHE_TTL"`
}

// ImageConfig configures origin downloads and encoding
type ImageConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FILE_IMAGE_FETCH_TIMEOUT"`
	MaxBytes     int64         `yaml:"max_bytes" env:"FILE_IMAGE_MAX_BYTES"`
	JPEGQuality  int           `yaml:"jpeg_quality" env:"FILE_IMAGE_JPEG_QUALITY"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := c.DatabaseType(); err != nil {
		return err
	}
	if _, err := c.StorageType(); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.GC.Interval < 0 || c.GC.Retention < 0 {
		return errors.New("gc interval and retention cannot be negative")
	}
	for kind, sizes := range c.Kinds {
		for _, d := range sizes {
			if d.Width <= 0 || d.Height <= 0 {
				return fmt.Errorf("kind %q: resize %s must have positive dimensions", kind, d)
			}
		}
	}
	return nil
}

// DatabaseType returns "memory" or "postgres"
func (c *ServerConfig) DatabaseType() (string, error) {
	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		return "memory", nil
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database URL %q (use 'memory' or 'postgres://...')", c.DatabaseURL)
	}
}

// StorageType returns "memory" or "s3"
func (c *ServerConfig) StorageType() (string, error) {
	switch {
	case c.StorageURL == "" || c.StorageURL == "memory" || strings.HasPrefix(c.StorageURL, "memory://"):
		return "memory", nil
	case strings.HasPrefix(c.StorageURL, "s3://"):
		u, err := url.Parse(c.StorageURL)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid storage URL %q: bucket is required", c.StorageURL)
		}
		return "s3", nil
	default:
		return "", fmt.Errorf("unsupported storage URL %q (use 'memory://' or 's3://bucket')", c.StorageURL)
	}
}

// Resizes returns the derivative sizes configured for kind. Unknown and
// empty kinds have none.
func (c *ServerConfig) Resizes(kind string) []lifecycle.Dimensions {
	if kind == "" {
		return nil
	}
	return c.Kinds[kind]
}

// CollectorConfig converts the GC section for lifecycle.NewCollector
func (c *ServerConfig) CollectorConfig() lifecycle.CollectorConfig {
	return lifecycle.CollectorConfig{
		Interval:      c.GC.Interval,
		Retention:     c.GC.Retention,
		PageSize:      c.GC.PageSize,
		PageAttempts:  c.GC.PageAttempts,
		DirectCascade: c.GC.DirectCascade,
	}
}

// NewLogger returns a JSON logger in production and a text logger otherwise
func (c *ServerConfig) NewLogger() *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.Environment == "production" {
		return slog.New(slog.NewJSONHandler(logOutput, opts))
	}
	return slog.New(slog.NewTextHandler(logOutput, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
