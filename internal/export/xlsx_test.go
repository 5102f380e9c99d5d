package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rezonia/nfe-entry/internal/allocation"
	"github.com/rezonia/nfe-entry/internal/export"
	"github.com/rezonia/nfe-entry/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRateioXLSX(t *testing.T) {
	items := []model.LineItem{
		{Name: "Parafuso", SKU: "PRF", Quantity: d("2"), UnitCost: d("10.00")},
		{Name: "Porca", Quantity: d("1"), UnitCost: d("30.00")},
	}
	res := allocation.Compute(items, model.ExtraCosts{Freight: d("5"), TaxPercent: d("10")})

	data, err := export.RateioXLSX(export.Header{
		InvoiceNumber: "123",
		InvoiceKey:    "35240612345678000190550010000001231000001234",
		Supplier:      "Distribuidora Exemplo",
		EntryDate:     time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	}, res)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.SummarySheet, export.ItemsSheet}, f.GetSheetList())

	raw := excelize.Options{RawCellValue: true}
	get := func(sheet, axis string) string {
		v, err := f.GetCellValue(sheet, axis, raw)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "123", get(export.SummarySheet, "B1"))
	assert.Equal(t, "15/06/2024", get(export.SummarySheet, "B4"))
	assert.Equal(t, "60.5", get(export.SummarySheet, "B10"))

	assert.Equal(t, "Produto", get(export.ItemsSheet, "A1"))
	assert.Equal(t, "Parafuso", get(export.ItemsSheet, "A2"))
	assert.Equal(t, "PRF", get(export.ItemsSheet, "B2"))
	assert.Equal(t, "12.1", get(export.ItemsSheet, "I2"))
	assert.Equal(t, "36.3", get(export.ItemsSheet, "I3"))
	assert.Equal(t, "", get(export.ItemsSheet, "A4"))
}

func TestRateioXLSX_Empty(t *testing.T) {
	res := allocation.Compute(nil, model.ExtraCosts{Freight: d("10")})

	data, err := export.RateioXLSX(export.Header{}, res)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(export.SummarySheet, "B11", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	rows, err := f.GetRows(export.ItemsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
