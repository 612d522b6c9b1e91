// Package config provides configuration loading and structs for the entscheid server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/entscheid/internal/models"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Cache backends.
const (
	CacheBackendSQL   = "sql"
	CacheBackendRedis = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" env:"ENTSCHEID_DEBUG"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Sources   SourcesConfig   `yaml:"sources"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host" env:"ENTSCHEID_HOST"`
	Port           int           `yaml:"port" env:"ENTSCHEID_PORT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"ENTSCHEID_REQUEST_TIMEOUT"`
}

// StorageConfig selects the relational backend and the full-text index location.
// An empty IndexPath keeps the index in memory.
type StorageConfig struct {
	Driver       string `yaml:"driver" env:"ENTSCHEID_DATABASE_DRIVER"`
	DatabasePath string `yaml:"database_path" env:"ENTSCHEID_DATABASE_PATH"`
	DSN          string `yaml:"dsn" env:"ENTSCHEID_DATABASE_DSN"`
	IndexPath    string `yaml:"index_path" env:"ENTSCHEID_INDEX_PATH"`
}

// CacheConfig holds the cache backend and per-type TTLs.
type CacheConfig struct {
	Backend         string        `yaml:"backend" env:"ENTSCHEID_CACHE_BACKEND"`
	RedisAddr       string        `yaml:"redis_addr" env:"ENTSCHEID_REDIS_ADDR"`
	RedisPassword   string        `yaml:"redis_password" env:"ENTSCHEID_REDIS_PASSWORD"`
	RedisDB         int           `yaml:"redis_db" env:"ENTSCHEID_REDIS_DB"`
	KeyPrefix       string        `yaml:"key_prefix"`
	SearchTTL       time.Duration `yaml:"search_ttl"`
	PartialTTL      time.Duration `yaml:"partial_search_ttl"`
	DecisionTTL     time.Duration `yaml:"decision_ttl"`
	RelatedTTL      time.Duration `yaml:"related_ttl"`
	AnalyticsTTL    time.Duration `yaml:"analytics_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// SearchConfig holds orchestrator limits.
type SearchConfig struct {
	DefaultLimit      int           `yaml:"default_limit"`
	MaxLimit          int           `yaml:"max_limit"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	Timeout           time.Duration `yaml:"timeout"`
	QueryLogRetention time.Duration `yaml:"query_log_retention"`
}

// AnalyticsConfig holds precedent-analytics tuning.
type AnalyticsConfig struct {
	SampleLimit    int     `yaml:"sample_limit"`
	CandidateLimit int     `yaml:"candidate_limit"`
	MinSimilarity  float64 `yaml:"min_similarity"`
}

// SourcesConfig configures the federal source and one source per canton code.
type SourcesConfig struct {
	Federal SourceConfig            `yaml:"federal"`
	Cantons map[string]SourceConfig `yaml:"cantons"`
}

// SourceConfig holds the transport settings of one upstream court API.
type SourceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Language       string        `yaml:"language"`
	Enabled        *bool         `yaml:"enabled"`
}

// EnabledOrDefault returns whether the source is active; defaults to true when a base URL is set.
func (s *SourceConfig) EnabledOrDefault() bool {
	if s.BaseURL == "" {
		return false
	}
	if s.Enabled != nil {
		return *s.Enabled
	}
	return true
}

// TelemetryConfig holds OpenTelemetry tracing settings. Tracing is off unless enabled.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENTSCHEID_TRACING_ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"ENTSCHEID_OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// MCPConfig names the tool server announced to MCP clients.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, applies defaults and validates the result.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.IndexPath != "" {
		cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg with ENTSCHEID_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.DatabasePath == "" {
			return fmt.Errorf("storage.database_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Cache.Backend {
	case CacheBackendSQL:
	case CacheBackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	for code, src := range c.Sources.Cantons {
		if _, err := models.ParseCanton(code); err != nil {
			return fmt.Errorf("sources.cantons: %w", err)
		}
		if src.BaseURL == "" {
			return fmt.Errorf("sources.cantons.%s: base_url is required", code)
		}
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
