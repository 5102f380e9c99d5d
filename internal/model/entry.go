package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewProduct describes a catalog product created on submission
type NewProduct struct {
	Name string `json:"name"`
	SKU  string `json:"sku,omitempty"`
	NCM  string `json:"ncm,omitempty"`
}

// LineItem is an item of the purchase being edited.
// Exactly one of ProductID and NewProduct identifies the catalog product.
type LineItem struct {
	ProductID  string          `json:"product_id,omitempty"`
	NewProduct *NewProduct     `json:"new_product,omitempty"`
	Name       string          `json:"name"`
	NCM        string          `json:"ncm,omitempty"`
	SKU        string          `json:"sku,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// Subtotal returns quantity * unit cost
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitCost)
}

// OtherCost is a free-text extra cost (e.g. "descarga")
type OtherCost struct {
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
}

// ExtraCosts are the costs spread over the items
type ExtraCosts struct {
	Freight    decimal.Decimal `json:"freight"`
	TaxPercent decimal.Decimal `json:"tax_percent"` // 0-100
	OtherCosts []OtherCost     `json:"other_costs,omitempty"`
}

// OtherCostsTotal sums the named other costs
func (c ExtraCosts) OtherCostsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, oc := range c.OtherCosts {
		total = total.Add(oc.Value)
	}
	return total
}

// AllocatedItem is a LineItem with its share of the extra costs.
// Derived on every recomputation, never authored.
type AllocatedItem struct {
	LineItem
	Subtotal      decimal.Decimal `json:"subtotal"`
	Proportion    decimal.Decimal `json:"proportion"`
	ExtraShare    decimal.Decimal `json:"extra_share"`
	AllocatedCost decimal.Decimal `json:"allocated_cost"`
}

// SubmissionItem is one item of the payload handed to persistence
type SubmissionItem struct {
	ProductID   string          `json:"product_id,omitempty"`
	NewProduct  *NewProduct     `json:"new_product,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	RawUnitCost decimal.Decimal `json:"raw_unit_cost"`
}

// Submission is the payload handed to the persistence collaborator.
// TaxPercent is a 0-1 fraction here, unlike the 0-100 value used while editing.
type Submission struct {
	InvoiceNumber string           `json:"invoice_number"`
	InvoiceKey    string           `json:"invoice_key"`
	SupplierID    string           `json:"supplier_id"`
	EntryDate     time.Time        `json:"entry_date"`
	FreightCost   decimal.Decimal  `json:"freight_cost"`
	TaxPercent    decimal.Decimal  `json:"tax_percent"`
	OtherCosts    decimal.Decimal  `json:"other_costs"`
	Notes         string           `json:"notes,omitempty"`
	Items         []SubmissionItem `json:"items"`
	Installments  []Installment    `json:"installments,omitempty"`
}

// Entry is a persisted purchase entry
type Entry struct {
	ID         string `json:"id"`
	Submission `json:"submission"`
	Allocated  []AllocatedItem `json:"allocated,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Supplier is a registered supplier resolved by document (CNPJ/CPF)
type Supplier struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document"`
}
