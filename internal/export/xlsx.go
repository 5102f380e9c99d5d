// Package export renders allocation results as spreadsheets.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/rezonia/nfe-entry/internal/allocation"
)

// Sheet names
const (
	SummarySheet = "resumo"
	ItemsSheet   = "rateio"
)

const brlFormat = `"R$" #,##0.00`

// Header identifies the purchase on the summary sheet
type Header struct {
	InvoiceNumber string
	InvoiceKey    string
	Supplier      string
	EntryDate     time.Time
}

var itemColumns = []string{
	"Produto", "SKU", "NCM", "Quantidade", "Custo unitário", "Subtotal",
	"Proporção", "Rateio", "Custo rateado",
}

// RateioXLSX renders the summary and per-item allocation of a purchase
func RateioXLSX(h Header, res allocation.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(ItemsSheet); err != nil {
		return nil, err
	}

	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(brlFormat)})
	if err != nil {
		return nil, err
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	summary := []struct {
		label string
		value any
		style int
	}{
		{"Nota fiscal", h.InvoiceNumber, 0},
		{"Chave de acesso", h.InvoiceKey, 0},
		{"Fornecedor", h.Supplier, 0},
		{"Data de entrada", dateString(h.EntryDate), 0},
		{"Subtotal", num(res.Subtotal), money},
		{"Frete", num(res.Freight), money},
		{"Outros custos", num(res.OtherCostsTotal), money},
		{"Impostos (%)", num(res.TaxPercent), 0},
		{"Impostos", num(res.TaxAmount), money},
		{"Total", num(res.Total), money},
		{"Não rateado", num(res.Unallocated), money},
	}
	for i, row := range summary {
		r := i + 1
		_ = f.SetCellValue(SummarySheet, cell(1, r), row.label)
		_ = f.SetCellStyle(SummarySheet, cell(1, r), cell(1, r), bold)
		_ = f.SetCellValue(SummarySheet, cell(2, r), row.value)
		if row.style != 0 {
			_ = f.SetCellStyle(SummarySheet, cell(2, r), cell(2, r), row.style)
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 20)
	_ = f.SetColWidth(SummarySheet, "B", "B", 48)

	for i, title := range itemColumns {
		_ = f.SetCellValue(ItemsSheet, cell(i+1, 1), title)
	}
	_ = f.SetCellStyle(ItemsSheet, cell(1, 1), cell(len(itemColumns), 1), bold)

	for i, item := range res.Items {
		r := i + 2
		values := []any{
			item.Name, item.SKU, item.NCM,
			num(item.Quantity), num(item.UnitCost), num(item.Subtotal),
			num(item.Proportion), num(item.ExtraShare), num(item.AllocatedCost),
		}
		for c, v := range values {
			_ = f.SetCellValue(ItemsSheet, cell(c+1, r), v)
		}
		_ = f.SetCellStyle(ItemsSheet, cell(5, r), cell(6, r), money)
		_ = f.SetCellStyle(ItemsSheet, cell(7, r), cell(7, r), percent)
		_ = f.SetCellStyle(ItemsSheet, cell(8, r), cell(9, r), money)
	}
	_ = f.SetColWidth(ItemsSheet, "A", "A", 40)
	_ = f.SetColWidth(ItemsSheet, "B", "I", 15)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

func strPtr(s string) *string {
	return &s
}
