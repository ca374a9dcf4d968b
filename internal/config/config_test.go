package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// clearEnv isolates tests from ambient deployment variables.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDatabaseURL, EnvEmbeddingServiceURL, EnvDefaultWeights, EnvRedisAddr, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "service", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 2*time.Second, cfg.Embedding.WarmTimeoutDuration())
	assert.Equal(t, 5*time.Minute, cfg.Database.MaxLifetimeDuration())
	assert.Equal(t, "memory", cfg.Search.IndexBackend)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  url: postgres://localhost/discovery_test
embedding:
  provider: deterministic
  dimensions: 64
search:
  default_limit: 25
  index_backend: hnsw
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/discovery_test", cfg.Database.URL)
	assert.Equal(t, "deterministic", cfg.Embedding.Provider)
	assert.Equal(t, 64, cfg.Embedding.Dimensions)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, "hnsw", cfg.Search.IndexBackend)
	assert.Equal(t, "debug", cfg.Logging.LevelName)

	// Untouched sections keep defaults.
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, 5000, cfg.Search.CandidateLimit)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigNotFound, errors.CodeOf(err))
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Search.DefaultWeights, cfg.Search.DefaultWeights)
}

func TestLoadOrDefaultMalformedFileStillErrors(t *testing.T) {
	path := writeConfig(t, "database: [not a mapping")
	_, err := LoadOrDefault(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  url: postgres://file/db
redis:
  addr: file:6379
`)
	t.Setenv(EnvDatabaseURL, "postgres://env/db")
	t.Setenv(EnvRedisAddr, "env:6379")
	t.Setenv(EnvDefaultWeights, "0.4,0.3,0.1,0.1,0.1")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.LevelName)

	w, err := cfg.Weights()
	require.NoError(t, err)
	assert.Equal(t, 0.4, w.Alpha)
	assert.Equal(t, 0.1, w.Epsilon)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "openai" }},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"bad warm timeout", func(c *Config) { c.Embedding.WarmTimeout = "fast" }},
		{"bad max lifetime", func(c *Config) { c.Database.MaxLifetime = "5 minutes" }},
		{"limit too high", func(c *Config) { c.Search.DefaultLimit = 100 }},
		{"min score out of range", func(c *Config) { c.Search.MinScore = 1.0 }},
		{"unknown backend", func(c *Config) { c.Search.IndexBackend = "faiss" }},
		{"unknown log level", func(c *Config) { c.Logging.LevelName = "trace" }},
		{"short weights", func(c *Config) { c.Search.DefaultWeights = "0.5,0.5" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("0.50, 0.20, 0.15, 0.10, 0.05")
	require.NoError(t, err)
	assert.Equal(t, 0.50, w.Alpha)
	assert.Equal(t, 0.20, w.Beta)
	assert.Equal(t, 0.15, w.Gamma)
	assert.Equal(t, 0.10, w.Delta)
	assert.Equal(t, 0.05, w.Epsilon)
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)

	_, err = ParseWeights("0.5,0.2,0.15,0.1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidWeights, errors.CodeOf(err))

	_, err = ParseWeights("a,b,c,d,e")
	require.Error(t, err)

	_, err = ParseWeights("-0.1,0.2,0.3,0.3,0.3")
	require.Error(t, err)

	// Empty falls back to the built-in defaults.
	w, err = ParseWeights("")
	require.NoError(t, err)
	assert.Equal(t, 0.50, w.Alpha)
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	assert.Contains(t, path, ".smartcart")
	assert.True(t, filepath.IsAbs(path) || path == "config.yaml")
}
