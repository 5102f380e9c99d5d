package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-entry/internal/allocation"
	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/entry"
	"github.com/rezonia/nfe-entry/internal/model"
	"github.com/rezonia/nfe-entry/internal/processor"
	"github.com/rezonia/nfe-entry/internal/server"
)

var (
	outputFile string
	timeout    time.Duration
)

var parseCmd = &cobra.Command{
	Use:   "parse [files...]",
	Short: "Parse NF-e files and allocate their costs",
	Long: `Parse one or more NF-e documents and show the purchase entry they seed.

Each invoice is read, its tax percent is inferred from the declared taxes and
freight, taxes and other costs are allocated across the items.

Supported formats:
  - NF-e XML: .xml
  - DANFE images: .png, .jpg, .jpeg, .tiff, .webp (requires API key)

Examples:
  nfe-entry parse nota.xml
  nfe-entry parse notas/ -f table
  nfe-entry parse danfe.jpg --api-key <key>
  nfe-entry parse *.xml -f csv -o entradas.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	parseCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Processing timeout per file")
}

// ParseResult holds the result of parsing a single file
type ParseResult struct {
	File       string               `json:"file"`
	Invoice    *model.ParsedInvoice `json:"invoice,omitempty"`
	Allocation *allocation.Result   `json:"allocation,omitempty"`
	Method     string               `json:"method,omitempty"`
	Confidence float64              `json:"confidence,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func runParse(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found to process")
	}

	printVerbose("Found %d files to process\n", len(files))
	if cfg.LLM.Enabled() {
		printVerbose("LLM extraction enabled (text: %s, vision: %s)\n", cfg.LLM.Model, cfg.LLM.VisionModel)
	}

	pipeline := server.NewPipeline(cfg, zap.NewNop(), nil)

	results := make([]*ParseResult, 0, len(files))
	for _, file := range files {
		printVerbose("Processing: %s\n", file)

		result := parseFile(cmd.Context(), pipeline, file)
		results = append(results, result)

		if result.Error != "" {
			printVerbose("  Error: %s\n", result.Error)
		} else {
			printVerbose("  Method: %s, Confidence: %.2f\n", result.Method, result.Confidence)
		}
	}

	w, closeOutput, err := openOutput(cmd.OutOrStdout(), outputFile)
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck

	switch outputFormat {
	case "json":
		return writeJSON(w, results)
	case "table":
		return writeParseTable(w, results)
	case "csv":
		return writeParseCSV(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func parseFile(ctx context.Context, pipeline *processor.Pipeline, filePath string) *ParseResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &ParseResult{File: filePath}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}

	res := pipeline.Process(ctx, data, getMimeType(filepath.Ext(filePath)))
	if res.Error != nil {
		// Extraction details stay out of the result; users see one message
		printVerbose("  Cause: %v\n", res.Error)
		result.Error = processor.UserMessage
		return result
	}

	draft := entry.NewDraft(time.Now())
	if err := draft.ApplyImport(res.Invoice); err != nil {
		result.Error = processor.UserMessage
		return result
	}
	alloc := draft.Allocation()

	result.Invoice = res.Invoice
	result.Allocation = &alloc
	result.Method = string(res.Method)
	result.Confidence = res.Confidence
	result.Warnings = res.Warnings
	return result
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeParseTable(w io.Writer, results []*ParseResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERRO: %s\n\n", r.File, r.Error)
			continue
		}

		inv := r.Invoice
		fmt.Fprintf(tw, "%s\tNF %s série %s\t%s\n", r.File, inv.InvoiceNumber, inv.Series, inv.SupplierName)
		fmt.Fprintf(tw, "Chave\t%s\n", inv.InvoiceKey)
		fmt.Fprintf(tw, "Entrada\t%s\n", inv.EntryDate.Format("2006-01-02"))
		writeAllocationTable(tw, *r.Allocation)
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}

// writeAllocationTable prints the per-item rateio followed by the totals
func writeAllocationTable(tw *tabwriter.Writer, res allocation.Result) {
	fmt.Fprintln(tw, "PRODUTO\tQTD\tCUSTO\tSUBTOTAL\tPROPORÇÃO\tRATEIO\tCUSTO RATEADO")
	fmt.Fprintln(tw, "-------\t---\t-----\t--------\t---------\t------\t-------------")
	for _, it := range res.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Name,
			it.Quantity.String(),
			money.FormatBRL(it.UnitCost),
			money.FormatBRL(it.Subtotal),
			money.FormatPercent(it.Proportion.Mul(money.Hundred)),
			money.FormatBRL(it.ExtraShare),
			money.FormatBRL(it.AllocatedCost),
		)
	}
	fmt.Fprintf(tw, "Subtotal\t%s\n", money.FormatBRL(res.Subtotal))
	fmt.Fprintf(tw, "Frete\t%s\n", money.FormatBRL(res.Freight))
	fmt.Fprintf(tw, "Outros custos\t%s\n", money.FormatBRL(res.OtherCostsTotal))
	fmt.Fprintf(tw, "Impostos (%s)\t%s\n", money.FormatPercent(res.TaxPercent), money.FormatBRL(res.TaxAmount))
	fmt.Fprintf(tw, "Total\t%s\n", money.FormatBRL(res.Total))
	if !res.Unallocated.IsZero() {
		fmt.Fprintf(tw, "Não rateado\t%s\n", money.FormatBRL(res.Unallocated))
	}
}

func writeParseCSV(w io.Writer, results []*ParseResult) error {
	fmt.Fprintln(w, "file,invoice_number,invoice_key,supplier_name,supplier_doc,entry_date,product,quantity,unit_cost,allocated_cost,error")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s,,,,,,,,,,%s\n", escapeCSV(r.File), escapeCSV(r.Error))
			continue
		}

		inv := r.Invoice
		for _, it := range r.Allocation.Items {
			fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,\n",
				escapeCSV(r.File),
				inv.InvoiceNumber,
				inv.InvoiceKey,
				escapeCSV(inv.SupplierName),
				inv.SupplierDoc,
				inv.EntryDate.Format("2006-01-02"),
				escapeCSV(it.Name),
				it.Quantity.String(),
				it.UnitCost.StringFixed(2),
				it.AllocatedCost.StringFixed(2),
			)
		}
	}

	return nil
}
