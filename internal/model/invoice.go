package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies how an invoice was obtained
type Source string

const (
	SourceXML     Source = "XML"
	SourceLLM     Source = "LLM"
	SourceManual  Source = "MANUAL"
	SourceUnknown Source = "UNKNOWN"
)

// ParsedInvoice is the normalized form of one NF-e document.
// It is produced once per import and never mutated afterwards.
type ParsedInvoice struct {
	InvoiceNumber string `json:"invoice_number,omitempty"`
	InvoiceKey    string `json:"invoice_key,omitempty"`
	Series        string `json:"series,omitempty"`
	Model         string `json:"model,omitempty"`

	SupplierName      string `json:"supplier_name,omitempty"`
	SupplierTradeName string `json:"supplier_trade_name,omitempty"`
	SupplierDoc       string `json:"supplier_doc,omitempty"`
	SupplierStateReg  string `json:"supplier_state_reg,omitempty"`

	IssueDate time.Time `json:"issue_date,omitempty"`
	EntryDate time.Time `json:"entry_date"`

	Items []ParsedItem `json:"items"`

	FreightCost decimal.Decimal `json:"freight_cost"`
	TotalTax    decimal.Decimal `json:"total_tax"`
	Taxes       TaxBreakdown    `json:"taxes"`

	ProductsTotal decimal.Decimal `json:"products_total"`
	Discount      decimal.Decimal `json:"discount"`
	Insurance     decimal.Decimal `json:"insurance"`
	InvoiceTotal  decimal.Decimal `json:"invoice_total"`

	Installments []Installment `json:"installments,omitempty"`

	Source Source `json:"source"`
	RawXML []byte `json:"-"`
}

// ParsedItem is one <det> line of the invoice
type ParsedItem struct {
	Number   int             `json:"number,omitempty"`
	Name     string          `json:"name"`
	NCM      string          `json:"ncm,omitempty"`
	SKU      string          `json:"sku,omitempty"`
	EAN      string          `json:"ean,omitempty"`
	CFOP     string          `json:"cfop,omitempty"`
	Unit     string          `json:"unit,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Subtotal returns quantity * unit cost
func (i ParsedItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitCost)
}

// TaxBreakdown holds the tax totals read from ICMSTot
type TaxBreakdown struct {
	ICMS   decimal.Decimal `json:"icms"`
	ICMSST decimal.Decimal `json:"icms_st"`
	IPI    decimal.Decimal `json:"ipi"`
	PIS    decimal.Decimal `json:"pis"`
	COFINS decimal.Decimal `json:"cofins"`
	Other  decimal.Decimal `json:"other"`
}

// Total sums every tax bucket
func (t TaxBreakdown) Total() decimal.Decimal {
	return t.ICMS.Add(t.ICMSST).Add(t.IPI).Add(t.PIS).Add(t.COFINS).Add(t.Other)
}

// Installment is one duplicata (payable instalment) of the invoice
type Installment struct {
	Number  string          `json:"number"`
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

// ParsedSubtotal sums quantity * unit cost over the parsed items
func (p *ParsedInvoice) ParsedSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// IsEmpty reports whether the parse produced nothing usable
func (p *ParsedInvoice) IsEmpty() bool {
	return p == nil || (len(p.Items) == 0 && p.InvoiceNumber == "")
}
