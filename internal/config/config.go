// Package config loads engine configuration from an optional YAML file
// merged with environment variables. Environment always wins, so deployments
// can run with no config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartcart/discovery/internal/catalog"
	"github.com/smartcart/discovery/internal/errors"
)

// Environment variables recognized by applyEnv.
const (
	EnvDatabaseURL         = "DATABASE_URL"
	EnvEmbeddingServiceURL = "EMBEDDING_SERVICE_URL"
	EnvDefaultWeights      = "DEFAULT_WEIGHTS"
	EnvRedisAddr           = "REDIS_ADDR"
	EnvLogLevel            = "SMARTCART_LOG_LEVEL"
)

// Config is the complete engine configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Redis     RedisConfig     `yaml:"redis"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig configures the Postgres connection pool. An empty URL
// selects the in-memory repository (development mode).
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxConnections  int    `yaml:"max_connections"`
	IdleConnections int    `yaml:"idle_connections"`
	MaxLifetime     string `yaml:"max_lifetime"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "service" or "deterministic".
	Provider   string `yaml:"provider"`
	ServiceURL string `yaml:"service_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	// WarmTimeout and ColdTimeout are Go duration strings ("2s", "60s").
	WarmTimeout string `yaml:"warm_timeout"`
	ColdTimeout string `yaml:"cold_timeout"`
	MaxRetries  int    `yaml:"max_retries"`
}

// RedisConfig configures the optional shared trending cache. An empty Addr
// disables Redis; trending is then computed per request.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SearchConfig tunes search behavior.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	MinScore       float64 `yaml:"min_score"`
	CandidateLimit int     `yaml:"candidate_limit"`
	// IndexBackend is "memory" (exact linear scan) or "hnsw" (approximate).
	IndexBackend string `yaml:"index_backend"`
	// DefaultWeights seeds the active ranking weights as five comma-separated
	// coefficients: semantic,rating,price,stock,recency.
	DefaultWeights string `yaml:"default_weights"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	LevelName string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
	Stderr    bool   `yaml:"stderr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConnections:  25,
			IdleConnections: 5,
			MaxLifetime:     "5m",
		},
		Embedding: EmbeddingConfig{
			Provider:    "service",
			ServiceURL:  "http://localhost:8000",
			Model:       "all-MiniLM-L6-v2",
			Dimensions:  384,
			BatchSize:   32,
			WarmTimeout: "2s",
			ColdTimeout: "60s",
			MaxRetries:  3,
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MinScore:       catalog.DefaultMinScore,
			CandidateLimit: 5000,
			IndexBackend:   "memory",
			DefaultWeights: "0.50,0.20,0.15,0.10,0.05",
		},
		Logging: LoggingConfig{
			LevelName: "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    true,
		},
	}
}

// DefaultPath returns the default config file location,
// ~/.smartcart/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".smartcart", "config.yaml")
}

// Load reads and validates the config file at path, applying environment
// overrides. A missing file is an error; use LoadOrDefault when the file is
// optional.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, errors.New(errors.ErrCodeConfigInvalid, "failed to read config file", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "failed to parse config file", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but treats a missing file as defaults plus
// environment overrides. Parse and validation errors still surface.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.CodeOf(err) != errors.ErrCodeConfigNotFound {
		return nil, err
	}

	cfg = Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv(EnvEmbeddingServiceURL); v != "" {
		c.Embedding.ServiceURL = v
	}
	if v := os.Getenv(EnvDefaultWeights); v != "" {
		c.Search.DefaultWeights = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.LevelName = v
	}
}

// Validate checks every field that later construction would otherwise fail
// on, so misconfiguration is reported once, at startup.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "", "service", "deterministic":
	default:
		return invalid(fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		return invalid("embedding dimensions must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		return invalid("embedding batch size must be positive")
	}
	if _, err := parseDuration(c.Embedding.WarmTimeout); err != nil {
		return invalid(fmt.Sprintf("invalid warm_timeout %q", c.Embedding.WarmTimeout))
	}
	if _, err := parseDuration(c.Embedding.ColdTimeout); err != nil {
		return invalid(fmt.Sprintf("invalid cold_timeout %q", c.Embedding.ColdTimeout))
	}
	if _, err := parseDuration(c.Database.MaxLifetime); err != nil {
		return invalid(fmt.Sprintf("invalid database max_lifetime %q", c.Database.MaxLifetime))
	}

	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > catalog.MaxSearchLimit {
		return invalid(fmt.Sprintf("default_limit %d out of range [1,%d]",
			c.Search.DefaultLimit, catalog.MaxSearchLimit))
	}
	if c.Search.MinScore < 0 || c.Search.MinScore >= 1 {
		return invalid(fmt.Sprintf("min_score %.2f out of range [0,1)", c.Search.MinScore))
	}
	if c.Search.CandidateLimit < 1 {
		return invalid("candidate_limit must be positive")
	}
	switch c.Search.IndexBackend {
	case "", "memory", "hnsw":
	default:
		return invalid(fmt.Sprintf("unknown index_backend %q", c.Search.IndexBackend))
	}
	if _, err := ParseWeights(c.Search.DefaultWeights); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.LevelName) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("unknown log level %q", c.Logging.LevelName))
	}
	return nil
}

// Weights parses the configured default ranking weights.
func (c *Config) Weights() (catalog.RankingWeights, error) {
	return ParseWeights(c.Search.DefaultWeights)
}

// WarmTimeoutDuration returns the parsed warm timeout. Validate must have
// passed.
func (c EmbeddingConfig) WarmTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.WarmTimeout)
	return d
}

// ColdTimeoutDuration returns the parsed cold timeout.
func (c EmbeddingConfig) ColdTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.ColdTimeout)
	return d
}

// MaxLifetimeDuration returns the parsed connection max lifetime.
func (c DatabaseConfig) MaxLifetimeDuration() time.Duration {
	d, _ := parseDuration(c.MaxLifetime)
	return d
}

// ParseWeights parses five comma-separated coefficients in the order
// semantic,rating,price,stock,recency into a weight row named "default".
func ParseWeights(s string) (catalog.RankingWeights, error) {
	if strings.TrimSpace(s) == "" {
		return catalog.DefaultWeights(), nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return catalog.RankingWeights{}, errors.New(errors.ErrCodeInvalidWeights,
			fmt.Sprintf("expected 5 comma-separated weights, got %d", len(parts)), nil)
	}

	values := make([]float64, 5)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return catalog.RankingWeights{}, errors.New(errors.ErrCodeInvalidWeights,
				fmt.Sprintf("weight %d is not a number: %q", i+1, part), err)
		}
		if v < 0 {
			return catalog.RankingWeights{}, errors.New(errors.ErrCodeInvalidWeights,
				fmt.Sprintf("weight %d is negative", i+1), nil)
		}
		values[i] = v
	}

	w := catalog.DefaultWeights()
	w.Alpha, w.Beta, w.Gamma, w.Delta, w.Epsilon = values[0], values[1], values[2], values[3], values[4]
	return w, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func invalid(msg string) error {
	return errors.New(errors.ErrCodeConfigInvalid, msg, nil)
}
