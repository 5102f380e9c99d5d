// Package config loads the nfe-entry.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rezonia/nfe-entry/internal/llm"
)

// Config represents the top-level nfe-entry.yaml configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	LLM        LLMConfig        `yaml:"llm"`
	Signature  SignatureConfig  `yaml:"signature"`
	Allocation AllocationConfig `yaml:"allocation"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Debug        bool          `yaml:"debug"`
	// MaxUploadBytes limits request bodies
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// DatabaseConfig selects the persistence backend. An empty URL keeps
// entries in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LLMConfig configures DANFE extraction through an OpenAI-compatible API.
type LLMConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	VisionModel string `yaml:"vision_model"`
}

// Enabled reports whether an API key is configured
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// SignatureConfig controls XMLDSig verification.
type SignatureConfig struct {
	// CAFile is a PEM or DER bundle of trusted ICP-Brasil roots
	CAFile string `yaml:"ca_file"`
	// CertsDir holds additional trusted certificates
	CertsDir    string        `yaml:"certs_dir"`
	SoftFail    bool          `yaml:"soft_fail"`
	OCSPTimeout time.Duration `yaml:"ocsp_timeout"`
}

// AllocationConfig holds rateio defaults.
type AllocationConfig struct {
	// DefaultTaxPercent (0-100) applies to allocation requests that carry no
	// tax percent of their own
	DefaultTaxPercent decimal.Decimal `yaml:"default_tax_percent"`
}

// Load reads a config file from disk on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			MaxUploadBytes: 20 << 20,
		},
		LLM: LLMConfig{
			BaseURL: llm.DefaultBaseURL,
		},
		Signature: SignatureConfig{
			OCSPTimeout: 10 * time.Second,
		},
	}
}

// ApplyEnv fills blank values from the environment. LLM_BASE_URL also
// replaces the built-in default endpoint.
func (c *Config) ApplyEnv() {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.LLM.APIKey, "LLM_API_KEY")
	if c.LLM.BaseURL == llm.DefaultBaseURL {
		c.LLM.BaseURL = ""
	}
	fill(&c.LLM.BaseURL, "LLM_BASE_URL")
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = llm.DefaultBaseURL
	}
	fill(&c.LLM.Model, "LLM_MODEL")
	fill(&c.LLM.VisionModel, "LLM_VISION_MODEL")
	fill(&c.Database.URL, "DATABASE_URL")
}

// Validate rejects values the services cannot run with
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}
	p := c.Allocation.DefaultTaxPercent
	if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("allocation.default_tax_percent must be between 0 and 100, got %s", p)
	}
	return nil
}
