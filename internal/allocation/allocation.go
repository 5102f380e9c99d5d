// Package allocation spreads the extra costs of a purchase (freight, other
// costs and taxes) over its items in proportion to each item's subtotal.
package allocation

import (
	"github.com/shopspring/decimal"

	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/model"
)

// Result is the outcome of one allocation pass
type Result struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	Freight         decimal.Decimal `json:"freight"`
	OtherCostsTotal decimal.Decimal `json:"other_costs_total"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
	// Unallocated holds the extra costs no item absorbed. Non-zero only
	// when the items subtotal is zero.
	Unallocated decimal.Decimal       `json:"unallocated"`
	Items       []model.AllocatedItem `json:"items"`
}

// ExtraTotal returns freight + other costs + tax
func (r Result) ExtraTotal() decimal.Decimal {
	return r.Freight.Add(r.OtherCostsTotal).Add(r.TaxAmount)
}

// Compute runs the rateio over items. It is a pure function of its inputs:
// calling it twice with the same arguments yields the same result, so callers
// recompute from scratch after every change instead of patching a previous
// result.
//
// Intermediate values keep full precision; only AllocatedCost is rounded.
func Compute(items []model.LineItem, costs model.ExtraCosts) Result {
	subtotal := Subtotal(items)
	otherCosts := costs.OtherCostsTotal()
	base := subtotal.Add(costs.Freight).Add(otherCosts)
	taxAmount := money.PercentOf(base, costs.TaxPercent)
	extra := costs.Freight.Add(otherCosts).Add(taxAmount)

	result := Result{
		Subtotal:        subtotal,
		Freight:         costs.Freight,
		OtherCostsTotal: otherCosts,
		TaxPercent:      costs.TaxPercent,
		TaxAmount:       taxAmount,
		Total:           base.Add(taxAmount),
		Unallocated:     money.Zero,
		Items:           make([]model.AllocatedItem, 0, len(items)),
	}

	if !subtotal.IsPositive() {
		result.Unallocated = extra
	}

	for _, item := range items {
		result.Items = append(result.Items, allocate(item, subtotal, extra))
	}
	return result
}

func allocate(item model.LineItem, subtotal, extra decimal.Decimal) model.AllocatedItem {
	itemSubtotal := item.Subtotal()

	proportion := money.Zero
	if subtotal.IsPositive() {
		proportion = itemSubtotal.Div(subtotal)
	}
	share := extra.Mul(proportion)

	cost := money.Zero
	if item.Quantity.IsPositive() {
		cost = money.Round2(itemSubtotal.Add(share).Div(item.Quantity))
	}

	return model.AllocatedItem{
		LineItem:      item,
		Subtotal:      itemSubtotal,
		Proportion:    proportion,
		ExtraShare:    share,
		AllocatedCost: cost,
	}
}

// Subtotal sums quantity * unit cost over items
func Subtotal(items []model.LineItem) decimal.Decimal {
	total := money.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// InferTaxPercent estimates the aggregate tax rate of an imported invoice as
// totalTax/subtotal expressed in percent, rounded to 2 places. A zero
// subtotal yields zero.
func InferTaxPercent(subtotal, totalTax decimal.Decimal) decimal.Decimal {
	return money.RatioAsPercent(totalTax, subtotal)
}

// InferFromInvoice infers the tax percent from a parsed invoice's items and
// total tax.
func InferFromInvoice(inv *model.ParsedInvoice) decimal.Decimal {
	if inv == nil {
		return money.Zero
	}
	return InferTaxPercent(inv.ParsedSubtotal(), inv.TotalTax)
}

// ItemsFromInvoice converts parsed items into editable line items
func ItemsFromInvoice(inv *model.ParsedInvoice) []model.LineItem {
	if inv == nil {
		return nil
	}
	items := make([]model.LineItem, 0, len(inv.Items))
	for _, p := range inv.Items {
		items = append(items, model.LineItem{
			Name:     p.Name,
			NCM:      p.NCM,
			SKU:      p.SKU,
			Quantity: p.Quantity,
			UnitCost: p.UnitCost,
		})
	}
	return items
}

// FromSubmission recomputes the allocation of a persisted submission. The
// submission carries tax as a fraction and other costs as a single total.
func FromSubmission(sub model.Submission) Result {
	items := make([]model.LineItem, 0, len(sub.Items))
	for _, it := range sub.Items {
		item := model.LineItem{
			ProductID:  it.ProductID,
			NewProduct: it.NewProduct,
			Name:       it.ProductID,
			Quantity:   it.Quantity,
			UnitCost:   it.RawUnitCost,
		}
		if it.NewProduct != nil {
			item.Name = it.NewProduct.Name
			item.SKU = it.NewProduct.SKU
			item.NCM = it.NewProduct.NCM
		}
		items = append(items, item)
	}

	costs := model.ExtraCosts{
		Freight:    sub.FreightCost,
		TaxPercent: sub.TaxPercent.Mul(money.Hundred),
	}
	if !sub.OtherCosts.IsZero() {
		costs.OtherCosts = []model.OtherCost{{Description: "outros", Value: sub.OtherCosts}}
	}
	return Compute(items, costs)
}
