package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-entry/internal/config"
)

var (
	version = "1.0.0"

	// Global flags
	configFile     string
	verbose        bool
	outputFormat   string
	apiKey         string
	llmBaseURL     string
	llmModel       string
	llmVisionModel string
	databaseURL    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nfe-entry",
	Short: "Import NF-e purchase invoices and allocate extra costs",
	Long: `nfe-entry reads Brazilian electronic invoices (NF-e XML) and turns them into
purchase entries with freight, taxes and other costs allocated (rateio) across
the purchased items.

Supports:
  - NF-e XML: bare <NFe>, <nfeProc> wrapped, nfe:/ns: prefixed
  - DANFE images: LLM vision extraction (requires an API key)
  - XMLDSig verification against ICP-Brasil roots

Examples:
  # Parse an NF-e and show the allocated costs
  nfe-entry parse nota.xml -f table

  # Allocate extra costs for a hand-built item list
  nfe-entry allocate --items itens.json --freight 20 --tax 10

  # Verify the invoice signature
  nfe-entry verify --ca-file icp-brasil.pem nota.xml

  # Start the HTTP API
  nfe-entry serve --config nfe-entry.yaml`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, csv, table)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for LLM provider (env: LLM_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&llmBaseURL, "llm-base-url", "", "LLM API base URL (env: LLM_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&llmModel, "llm-model", "", "LLM model for text extraction (env: LLM_MODEL)")
	rootCmd.PersistentFlags().StringVar(&llmVisionModel, "llm-vision-model", "", "LLM model for vision/image extraction (env: LLM_VISION_MODEL)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL for saved entries (env: DATABASE_URL)")
}

// loadConfig layers the config file, explicit flags and the environment
func loadConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		printVerbose("Loaded config from %s\n", configFile)
	} else {
		cfg = config.Default()
	}

	// Flags override file values
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if llmBaseURL != "" {
		cfg.LLM.BaseURL = llmBaseURL
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if llmVisionModel != "" {
		cfg.LLM.VisionModel = llmVisionModel
	}
	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}

	// Environment fills whatever is still blank
	cfg.ApplyEnv()
	return cfg.Validate()
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
