package vector

import (
	"os"
	"strings"
	"time"
)

// Config describes the ChromaDB connection. Values come from the
// environment with sensible local defaults.
type Config struct {
	Host             string
	Port             string
	Scheme           string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

// Merge overlays non-empty override fields onto the base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Host) != "" {
		result.Host = strings.TrimSpace(override.Host)
	}
	if strings.TrimSpace(override.Port) != "" {
		result.Port = strings.TrimSpace(override.Port)
	}
	if strings.TrimSpace(override.Scheme) != "" {
		result.Scheme = strings.TrimSpace(override.Scheme)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		result.APIKey = override.APIKey
	}
	if strings.TrimSpace(override.CollectionPrefix) != "" {
		result.CollectionPrefix = strings.TrimSpace(override.CollectionPrefix)
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	return result
}

// LoadConfig reads the Chroma settings from the environment.
func LoadConfig() Config {
	cfg := Config{}
	cfg.Host = strings.TrimSpace(os.Getenv("CHROMADB_HOST"))
	cfg.Port = strings.TrimSpace(os.Getenv("CHROMADB_PORT"))
	cfg.Scheme = strings.TrimSpace(os.Getenv("CHROMADB_SCHEME"))
	cfg.APIKey = strings.TrimSpace(os.Getenv("CHROMADB_API_KEY"))
	cfg.CollectionPrefix = strings.TrimSpace(os.Getenv("CHROMADB_COLLECTION_PREFIX"))
	if timeout := strings.TrimSpace(os.Getenv("CHROMADB_TIMEOUT")); timeout != "" {
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = parsed
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		c.Port = "8000"
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "repopilot"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}
