package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/EGF2/file/pkg/lifecycle"
)

var logOutput io.Writer = os.Stderr

// Kinds maps an asset kind (e.g. "avatar") to its derivative sizes. From
// the environment it is read as JSON:
//
//	FILE_KINDS='{"avatar":[{"width":64,"height":64},{"width":200,"height":200}]}'
type Kinds map[string][]lifecycle.Dimensions

// SetValue implements cleanenv.Setter
func (k *Kinds) SetValue(s string) error {
	if s == "" {
		return nil
	}
	var kinds map[string][]lifecycle.Dimensions
	if err := json.Unmarshal([]byte(s), &kinds); err != nil {
		return fmt.Errorf("invalid kinds: %w", err)
	}
	*k = kinds
	return nil
}

// WithEnv applies environment variable overrides. Only variables that are
// set are applied; see the env tags on ServerConfig for the names.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML (or JSON, TOML, EDN) file, then applies environment
// overrides on top of it
func WithFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
}

// Usage describes every environment variable
func Usage() string {
	var cfg ServerConfig
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabaseURL sets the metadata store ("memory" or a postgres DSN)
func WithDatabaseURL(url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = url
		return nil
	}
}

// WithStorageURL sets the object store ("memory://" or "s3://bucket")
func WithStorageURL(url string) Option {
	return func(c *ServerConfig) error {
		c.StorageURL = url
		return nil
	}
}

// WithKind registers the derivative sizes of an asset kind
func WithKind(kind string, sizes ...lifecycle.Dimensions) Option {
	return func(c *ServerConfig) error {
		if kind == "" {
			return fmt.Errorf("kind cannot be empty")
		}
		if c.Kinds == nil {
			c.Kinds = Kinds{}
		}
		c.Kinds[kind] = sizes
		return nil
	}
}

// WithGC configures the garbage collector schedule
func WithGC(enabled bool, interval, retention time.Duration) Option {
	return func(c *ServerConfig) error {
		c.GC.Enabled = enabled
		if interval > 0 {
			c.GC.Interval = interval
		}
		if retention > 0 {
			c.GC.Retention = retention
		}
		return nil
	}
}

// WithAsyncDispatch toggles background event handling
func WithAsyncDispatch(async bool) Option {
	return func(c *ServerConfig) error {
		c.AsyncDispatch = async
		return nil
	}
}
