package catalog

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Path string

	MaxOpenConns int
	MaxIdleConns int

	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Path) != "" {
		result.Path = strings.TrimSpace(override.Path)
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	if override.ConnMaxLifetime > 0 {
		result.ConnMaxLifetime = override.ConnMaxLifetime
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	return result
}

// LoadConfig reads catalog settings from CATALOG_* environment variables and
// fills defaults for anything unset.
func LoadConfig() Config {
	cfg := Config{Path: strings.TrimSpace(os.Getenv("CATALOG_DB_PATH"))}
	if raw := strings.TrimSpace(os.Getenv("CATALOG_MAX_OPEN_CONNS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.MaxOpenConns = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("CATALOG_BUSY_TIMEOUT")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			cfg.BusyTimeout = parsed
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = "data/catalog.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 15 * time.Minute
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
}
