package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "inquiry.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.SonnetModel)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "https://google.serper.dev", cfg.Serper.BaseURL)
	assert.Equal(t, 5, cfg.Pipeline.FetchConcurrency)
	assert.Equal(t, 8, cfg.Pipeline.MaxURLs)
	assert.InDelta(t, 0.15, cfg.Pipeline.MaterialityThreshold, 0.001)
	assert.Equal(t, 60, cfg.Pipeline.StageTimeoutSecs)
	assert.Equal(t, 0, cfg.Pipeline.DeadlineSecs)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.InDelta(t, 4.0, cfg.Fetch.HostRate, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/inquiry
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  fetch_concurrency: 3
  materiality_threshold: 0.25
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pipeline.FetchConcurrency)
	assert.InDelta(t, 0.25, cfg.Pipeline.MaterialityThreshold, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Pipeline.MaxURLs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INQUIRY_STORE_DRIVER", "postgres")
	t.Setenv("INQUIRY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("INQUIRY_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with enough populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "inquiry.db"
	cfg.Pipeline.FetchConcurrency = 5
	cfg.Pipeline.MaterialityThreshold = 0.15
	cfg.Server.Port = 8080
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Jina.Key = "jina-key"
	return cfg
}

func TestValidateAsk_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("ask"))
}

func TestValidateAsk_MissingProviders(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Jina.Key = ""

	err := cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "retrieval provider key")
}

func TestValidateAsk_PerplexityAloneSatisfiesRetrieval(t *testing.T) {
	cfg := validDefaults()
	cfg.Jina.Key = ""
	cfg.Perplexity.Key = "pplx-key"

	assert.NoError(t, cfg.Validate("ask"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.FetchConcurrency = 0
	err := cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch_concurrency must be between 1 and 50")

	cfg.Pipeline.FetchConcurrency = 51
	err = cfg.Validate("ask")
	require.Error(t, err)

	cfg.Pipeline.FetchConcurrency = 50
	assert.NoError(t, cfg.Validate("ask"))
}

func TestValidateMaterialityBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.MaterialityThreshold = 0
	err := cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "materiality_threshold")

	cfg.Pipeline.MaterialityThreshold = 1.5
	require.Error(t, cfg.Validate("ask"))
}

func TestValidateExport_NoProviderKeysNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Jina.Key = ""

	assert.NoError(t, cfg.Validate("export"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
