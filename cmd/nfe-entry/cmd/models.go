package cmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-entry/internal/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available LLM models from API",
	Long: `Fetch and list available LLM models from the configured API endpoint.

This command queries the /models endpoint of your LLM provider to show
all available models. Requires an API key (--api-key or LLM_API_KEY).

To use a specific model for DANFE extraction, set the environment variables:
  LLM_MODEL=<model-id>         # For text extraction
  LLM_VISION_MODEL=<model-id>  # For image extraction

Or use CLI flags:
  --llm-model <model-id>
  --llm-vision-model <model-id>`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprintf(out, "  LLM_BASE_URL:     %s\n", cfg.LLM.BaseURL)
	fmt.Fprintf(out, "  LLM_MODEL:        %s\n", orNotSet(cfg.LLM.Model))
	fmt.Fprintf(out, "  LLM_VISION_MODEL: %s\n", orNotSet(cfg.LLM.VisionModel))
	fmt.Fprintf(out, "  LLM_API_KEY:      %s\n", maskKey(cfg.LLM.APIKey))
	fmt.Fprintln(out)

	if !cfg.LLM.Enabled() {
		fmt.Fprintln(out, "⚠️  LLM_API_KEY is required. Set it via environment variable or --api-key flag.")
		return nil
	}

	fmt.Fprintf(out, "Fetching models from %s/models...\n\n", cfg.LLM.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := llm.NewClient(cfg.LLM.APIKey, llm.WithBaseURL(cfg.LLM.BaseURL))
	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(out, "⚠️  Could not fetch models: %v\n\n", err)
		fmt.Fprintln(out, "Tip: Your API provider may not support the /models endpoint.")
		fmt.Fprintln(out, "     You can still use models by setting LLM_MODEL and LLM_VISION_MODEL directly.")
		return nil
	}

	if len(models) == 0 {
		fmt.Fprintln(out, "No models returned from API.")
		return nil
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	fmt.Fprintf(out, "Available Models (%d):\n", len(models))
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL ID\tOWNER\tCREATED")
	fmt.Fprintln(w, "--------\t-----\t-------")

	for _, m := range models {
		created := ""
		if m.Created > 0 {
			created = time.Unix(m.Created, 0).Format("2006-01-02")
		}
		owner := m.OwnedBy
		if owner == "" {
			owner = llm.InferProvider(m.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, owner, created)
	}
	return w.Flush()
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "Not set"
	case len(key) > 8:
		return "Set (" + key[:8] + "...)"
	default:
		return "Set"
	}
}
