package processor

import (
	"fmt"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/model"
)

var tolerance = decimal.RequireFromString("0.01")

// Check runs sanity checks on an extracted invoice and returns human
// readable warnings. Warnings never block an import.
func Check(inv *model.ParsedInvoice) []string {
	var warnings []string

	if inv.InvoiceKey != "" && (len(inv.InvoiceKey) != 44 || !allDigits(inv.InvoiceKey)) {
		warnings = append(warnings, fmt.Sprintf("access key %q is not 44 digits", inv.InvoiceKey))
	}
	if inv.SupplierDoc == "" {
		warnings = append(warnings, "supplier document (CNPJ/CPF) not found")
	}
	if len(inv.Items) == 0 {
		warnings = append(warnings, "no items with name and positive quantity")
	}

	subtotal := inv.ParsedSubtotal()
	if inv.ProductsTotal.IsPositive() && subtotal.Sub(inv.ProductsTotal).Abs().GreaterThan(tolerance) {
		warnings = append(warnings, fmt.Sprintf("items subtotal %s differs from products total %s",
			money.FormatBRL(subtotal), money.FormatBRL(inv.ProductsTotal)))
	}

	if inv.InvoiceTotal.IsPositive() && inv.ProductsTotal.IsPositive() {
		expected := inv.ProductsTotal.
			Sub(inv.Discount).
			Add(inv.FreightCost).
			Add(inv.Insurance).
			Add(inv.Taxes.ICMSST).
			Add(inv.Taxes.IPI).
			Add(inv.Taxes.Other)
		if expected.Sub(inv.InvoiceTotal).Abs().GreaterThan(tolerance) {
			warnings = append(warnings, fmt.Sprintf("invoice total %s differs from computed %s",
				money.FormatBRL(inv.InvoiceTotal), money.FormatBRL(expected)))
		}
	}

	return warnings
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
