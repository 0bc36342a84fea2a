// Package config holds the explicitly constructed configuration passed to
// component constructors. There is no process-wide mutable singleton: the
// loaded Config is handed to whoever needs it.
package config

import (
	"fmt"
	"strings"
	"time"
)

var _ Validator = (*Config)(nil)

// Backend selects the durable medium implementation.
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
)

type Config struct {
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Catalog CatalogConfig `koanf:"catalog"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StoreConfig struct {
	Backend  string         `koanf:"backend"`
	Database DatabaseConfig `koanf:"database"`
	Nats     NATSConfig     `koanf:"nats"`
}

type DatabaseConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type NATSConfig struct {
	Url          string        `koanf:"url"`
	Timeout      time.Duration `koanf:"timeout"`
	BucketPrefix string        `koanf:"bucket_prefix"`
}

type CatalogConfig struct {
	PageSize int `koanf:"page_size"`
}

// String returns a string representation of the configuration with
// credentials masked.
func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Store Configuration ---\n")
	b.WriteString(fmt.Sprintf("  store.backend: %s\n", c.Store.Backend))
	b.WriteString(fmt.Sprintf("  store.database.url: %s\n", maskURL(c.Store.Database.URL)))
	b.WriteString(fmt.Sprintf("  store.database.timeout: %s\n", c.Store.Database.Timeout))
	b.WriteString(fmt.Sprintf("  store.nats.url: %s\n", c.Store.Nats.Url))
	b.WriteString(fmt.Sprintf("  store.nats.timeout: %s\n", c.Store.Nats.Timeout))
	b.WriteString(fmt.Sprintf("  store.nats.bucket_prefix: %s\n", c.Store.Nats.BucketPrefix))

	b.WriteString("\n--- Catalog Configuration ---\n")
	b.WriteString(fmt.Sprintf("  catalog.page_size: %d\n", c.Catalog.PageSize))

	b.WriteString("\n--- Logging ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))

	return b.String()
}

func maskURL(url string) string {
	if url == "" {
		return "<not configured>"
	}
	// Mask the URL by replacing the username and password with "****"
	parts := strings.Split(url, "@")
	if len(parts) == 2 {
		return "****@" + parts[1]
	}
	return "****"
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendNATS:
		if c.Store.Nats.Url == "" {
			return fmt.Errorf("store.nats.url is required for the %s backend", BackendNATS)
		}
		if c.Store.Nats.BucketPrefix == "" {
			return fmt.Errorf("store.nats.bucket_prefix is required for the %s backend", BackendNATS)
		}
	case BackendPostgres:
		if c.Store.Database.URL == "" {
			return fmt.Errorf("store.database.url is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("catalog.page_size must be positive, got %d", c.Catalog.PageSize)
	}
	return nil
}
