package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-entry/internal/config"
	"github.com/rezonia/nfe-entry/internal/llm"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, llm.DefaultBaseURL, cfg.LLM.BaseURL)
	assert.False(t, cfg.LLM.Enabled())
	assert.False(t, cfg.Signature.SoftFail)
	assert.Empty(t, cfg.Database.URL)
	assert.True(t, cfg.Allocation.DefaultTaxPercent.IsZero())
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfe-entry.yaml")
	content := `
server:
  address: ":9090"
  read_timeout: 10s
  debug: true
database:
  url: postgres://localhost/nfe
llm:
  api_key: sk-test
  model: openai/gpt-4o-mini
signature:
  soft_fail: true
  ocsp_timeout: 3s
allocation:
  default_tax_percent: "18.5"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout, "unset values keep defaults")
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "postgres://localhost/nfe", cfg.Database.URL)
	assert.True(t, cfg.LLM.Enabled())
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, llm.DefaultBaseURL, cfg.LLM.BaseURL)
	assert.True(t, cfg.Signature.SoftFail)
	assert.Equal(t, 3*time.Second, cfg.Signature.OCSPTimeout)
	assert.True(t, cfg.Allocation.DefaultTaxPercent.Equal(decimal.RequireFromString("18.5")))
}

func TestRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Address = ":7000"
	cfg.LLM.VisionModel = "google/gemini-2.0-flash"
	cfg.Allocation.DefaultTaxPercent = decimal.NewFromInt(12)

	path := filepath.Join(t.TempDir(), "nfe-entry.yaml")
	require.NoError(t, config.Save(path, cfg))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", got.Server.Address)
	assert.Equal(t, "google/gemini-2.0-flash", got.LLM.VisionModel)
	assert.True(t, got.Allocation.DefaultTaxPercent.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, cfg.Server.ReadTimeout, got.Server.ReadTimeout)
}

func TestLoadNotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: [unclosed"},
		{"tax out of range", "allocation:\n  default_tax_percent: \"150\"\n"},
		{"empty address", "server:\n  address: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nfe-entry.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("LLM_VISION_MODEL", "")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("LLM_BASE_URL", "")

	cfg := config.Default()
	cfg.LLM.Model = "flag-model"
	cfg.ApplyEnv()

	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "flag-model", cfg.LLM.Model, "explicit values win over env")
	assert.Empty(t, cfg.LLM.VisionModel)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, llm.DefaultBaseURL, cfg.LLM.BaseURL)
}

func TestApplyEnv_BaseURL(t *testing.T) {
	t.Setenv("LLM_BASE_URL", "http://localhost:11434/v1")

	cfg := config.Default()
	cfg.ApplyEnv()
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)

	cfg = config.Default()
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.ApplyEnv()
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
}
