package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-entry/internal/allocation"
	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/entry"
	"github.com/rezonia/nfe-entry/internal/export"
	"github.com/rezonia/nfe-entry/internal/parser/nfe"
	"github.com/rezonia/nfe-entry/internal/processor"
	"github.com/rezonia/nfe-entry/internal/server"
)

var (
	itemsFile     string
	freightFlag   string
	taxFlag       string
	otherCostFlag []string
	xlsxFile      string
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Allocate freight, taxes and other costs across items",
	Long: `Compute the rateio of a purchase: freight, taxes and other costs are spread
across the items in proportion to each item's subtotal.

Input is either an NF-e XML (items, freight and the inferred tax percent are
taken from the invoice) or a JSON document:

  {
    "items": [{"name": "Parafuso", "quantity": "10", "unit_cost": "2.50"}],
    "freight": "20",
    "tax_percent": "10",
    "other_costs": [{"description": "seguro", "value": "5"}]
  }

Flags override the values read from the input.

Examples:
  nfe-entry allocate --items itens.json -f table
  nfe-entry allocate --items nota.xml --tax 12,5
  cat itens.json | nfe-entry allocate --freight 30 --other "descarga=15"
  nfe-entry allocate --items nota.xml --xlsx rateio.xlsx`,
	Args: cobra.NoArgs,
	RunE: runAllocate,
}

func init() {
	rootCmd.AddCommand(allocateCmd)

	allocateCmd.Flags().StringVarP(&itemsFile, "items", "i", "-", "NF-e XML or JSON input (- for stdin)")
	allocateCmd.Flags().StringVar(&freightFlag, "freight", "", "Freight cost")
	allocateCmd.Flags().StringVar(&taxFlag, "tax", "", "Tax percent (0-100)")
	allocateCmd.Flags().StringArrayVar(&otherCostFlag, "other", nil, "Other cost as description=value (repeatable)")
	allocateCmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Also write the rateio spreadsheet to this file")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd.InOrStdin(), itemsFile)
	if err != nil {
		return err
	}

	draft := entry.NewDraft(time.Now())
	if processor.DetectFormat(data) == processor.FormatXML {
		err = draftFromXML(draft, data)
	} else {
		err = draftFromJSON(draft, data)
	}
	if err != nil {
		return err
	}

	if err := applyCostFlags(draft); err != nil {
		return err
	}

	res := draft.Allocation()

	if xlsxFile != "" {
		content, err := export.RateioXLSX(export.Header{
			InvoiceNumber: draft.InvoiceNumber,
			InvoiceKey:    draft.InvoiceKey,
			Supplier:      draft.SupplierName,
			EntryDate:     draft.EntryDate,
		}, res)
		if err != nil {
			return err
		}
		if err := os.WriteFile(xlsxFile, content, 0o644); err != nil {
			return fmt.Errorf("failed to write spreadsheet: %w", err)
		}
		printVerbose("Wrote %s\n", xlsxFile)
	}

	w := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		return writeJSON(w, res)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeAllocationTable(tw, res)
		return tw.Flush()
	case "csv":
		return writeAllocationCSV(w, res)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func draftFromXML(draft *entry.Draft, data []byte) error {
	inv, err := nfe.NewExtractor().ParseBytes(data)
	if err == nil {
		err = draft.ApplyImport(inv)
	}
	if err != nil {
		printVerbose("Cause: %v\n", err)
		return errors.New(processor.UserMessage)
	}
	return nil
}

// draftFromJSON builds the draft item by item so manual input gets the same
// validation as interactive edits
func draftFromJSON(draft *entry.Draft, data []byte) error {
	var req server.AllocationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid allocation input: %w", err)
	}

	for _, item := range req.Items {
		if err := draft.AddItem(item); err != nil {
			return err
		}
	}
	if err := draft.SetFreight(req.Freight); err != nil {
		return err
	}
	taxPercent := cfg.Allocation.DefaultTaxPercent
	if req.TaxPercent != nil {
		taxPercent = *req.TaxPercent
	}
	if err := draft.SetTaxPercent(taxPercent); err != nil {
		return err
	}
	for _, oc := range req.OtherCosts {
		if err := draft.AddOtherCost(oc.Description, oc.Value); err != nil {
			return err
		}
	}
	return nil
}

func applyCostFlags(draft *entry.Draft) error {
	if freightFlag != "" {
		freight, err := money.Parse(freightFlag)
		if err != nil {
			return fmt.Errorf("invalid --freight %q: %w", freightFlag, err)
		}
		if err := draft.SetFreight(freight); err != nil {
			return err
		}
	}
	if taxFlag != "" {
		tax, err := money.Parse(taxFlag)
		if err != nil {
			return fmt.Errorf("invalid --tax %q: %w", taxFlag, err)
		}
		if err := draft.SetTaxPercent(tax); err != nil {
			return err
		}
	}
	for _, raw := range otherCostFlag {
		description, value, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("invalid --other %q: expected description=value", raw)
		}
		amount, err := money.Parse(value)
		if err != nil {
			return fmt.Errorf("invalid --other %q: %w", raw, err)
		}
		if err := draft.AddOtherCost(description, amount); err != nil {
			return err
		}
	}
	return nil
}

func writeAllocationCSV(w io.Writer, res allocation.Result) error {
	fmt.Fprintln(w, "product,sku,quantity,unit_cost,subtotal,proportion,extra_share,allocated_cost")
	for _, it := range res.Items {
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%s\n",
			escapeCSV(it.Name),
			escapeCSV(it.SKU),
			it.Quantity.String(),
			it.UnitCost.StringFixed(2),
			it.Subtotal.StringFixed(2),
			it.Proportion.StringFixed(6),
			it.ExtraShare.StringFixed(2),
			it.AllocatedCost.StringFixed(2),
		)
	}
	return nil
}
