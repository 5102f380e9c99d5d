// Package entry holds the editing session of a purchase entry: the working
// set of header, items and extra costs that is validated, recomputed and
// finally handed to persistence as a submission.
package entry

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-entry/internal/allocation"
	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/model"
)

// ErrDuplicateProduct is returned when a catalog product is already in the draft
var ErrDuplicateProduct = errors.New("product already in entry")

// Draft is the working set of one editing session. It is not safe for
// concurrent use; each session owns its own Draft.
type Draft struct {
	InvoiceNumber string    `json:"invoice_number"`
	InvoiceKey    string    `json:"invoice_key"`
	SupplierID    string    `json:"supplier_id"`
	SupplierName  string    `json:"supplier_name,omitempty"`
	SupplierDoc   string    `json:"supplier_doc,omitempty"`
	EntryDate     time.Time `json:"entry_date"`
	Notes         string    `json:"notes,omitempty"`

	Items        []model.LineItem    `json:"items"`
	Costs        model.ExtraCosts    `json:"costs"`
	Installments []model.Installment `json:"installments,omitempty"`
}

// NewDraft starts an empty session dated today
func NewDraft(today time.Time) *Draft {
	y, m, d := today.Date()
	return &Draft{
		EntryDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Items:     []model.LineItem{},
	}
}

// AddItem validates and appends an item
func (d *Draft) AddItem(item model.LineItem) error {
	if err := d.checkItem(item, -1); err != nil {
		return err
	}
	d.Items = append(d.Items, item)
	return nil
}

// UpdateItem replaces the item at index i
func (d *Draft) UpdateItem(i int, item model.LineItem) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	if err := d.checkItem(item, i); err != nil {
		return err
	}
	d.Items[i] = item
	return nil
}

// RemoveItem drops the item at index i
func (d *Draft) RemoveItem(i int) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	d.Items = append(d.Items[:i], d.Items[i+1:]...)
	return nil
}

// AddOtherCost appends a named extra cost
func (d *Draft) AddOtherCost(description string, value decimal.Decimal) error {
	if !money.IsNonNegative(value) {
		return model.NewValidationError("other_costs", value.String(), model.RuleNonNeg, "other cost must not be negative")
	}
	d.Costs.OtherCosts = append(d.Costs.OtherCosts, model.OtherCost{
		Description: strings.TrimSpace(description),
		Value:       value,
	})
	return nil
}

// RemoveOtherCost drops the other cost at index i
func (d *Draft) RemoveOtherCost(i int) error {
	if i < 0 || i >= len(d.Costs.OtherCosts) {
		return model.NewValidationError("other_costs", i, model.RuleIndex, "no such other cost")
	}
	d.Costs.OtherCosts = append(d.Costs.OtherCosts[:i], d.Costs.OtherCosts[i+1:]...)
	return nil
}

// SetFreight sets the freight cost
func (d *Draft) SetFreight(freight decimal.Decimal) error {
	if !money.IsNonNegative(freight) {
		return model.NewValidationError("freight", freight.String(), model.RuleNonNeg, "freight must not be negative")
	}
	d.Costs.Freight = freight
	return nil
}

// SetTaxPercent sets the tax rate as a 0-100 percentage with 2 places
func (d *Draft) SetTaxPercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(money.Hundred) {
		return model.NewValidationError("tax_percent", percent.String(), model.RulePercent, "tax percent must be between 0 and 100")
	}
	d.Costs.TaxPercent = money.Round2(percent)
	return nil
}

// Allocation recomputes the rateio for the current working set
func (d *Draft) Allocation() allocation.Result {
	return allocation.Compute(d.Items, d.Costs)
}

// ApplyImport seeds the draft from a parsed invoice. Items are replaced,
// freight is copied and the tax percent is inferred from the invoice's total
// tax. An invoice with neither number nor items is rejected and leaves the
// draft untouched.
func (d *Draft) ApplyImport(inv *model.ParsedInvoice) error {
	if inv.IsEmpty() {
		return model.ErrEmptyInvoice
	}

	d.InvoiceNumber = inv.InvoiceNumber
	d.InvoiceKey = inv.InvoiceKey
	d.SupplierName = inv.SupplierName
	d.SupplierDoc = inv.SupplierDoc
	if !inv.EntryDate.IsZero() {
		d.EntryDate = inv.EntryDate
	}
	d.Items = allocation.ItemsFromInvoice(inv)
	d.Costs.Freight = inv.FreightCost
	d.Costs.TaxPercent = allocation.InferFromInvoice(inv)
	d.Installments = slices.Clone(inv.Installments)
	return nil
}

// Validate checks the draft can be submitted
func (d *Draft) Validate() error {
	if len(d.Items) == 0 {
		return model.NewValidationError("items", nil, model.RuleMinItems, "entry has no items")
	}
	seen := make(map[string]bool, len(d.Items))
	for _, item := range d.Items {
		if !item.Quantity.IsPositive() {
			return model.NewValidationError("quantity", item.Quantity.String(), model.RulePositive, "quantity must be greater than zero")
		}
		if item.UnitCost.IsNegative() {
			return model.NewValidationError("unit_cost", item.UnitCost.String(), model.RuleNonNeg, "unit cost must not be negative")
		}
		if item.ProductID == "" && productName(item) == "" {
			return model.NewValidationError("name", nil, model.RuleRequired, "new product needs a name")
		}
		if item.ProductID != "" {
			if seen[item.ProductID] {
				return ErrDuplicateProduct
			}
			seen[item.ProductID] = true
		}
	}
	if d.Costs.Freight.IsNegative() {
		return model.NewValidationError("freight", d.Costs.Freight.String(), model.RuleNonNeg, "freight must not be negative")
	}
	if d.Costs.TaxPercent.IsNegative() || d.Costs.TaxPercent.GreaterThan(money.Hundred) {
		return model.NewValidationError("tax_percent", d.Costs.TaxPercent.String(), model.RulePercent, "tax percent must be between 0 and 100")
	}
	for _, oc := range d.Costs.OtherCosts {
		if oc.Value.IsNegative() {
			return model.NewValidationError("other_costs", oc.Value.String(), model.RuleNonNeg, "other cost must not be negative")
		}
	}
	return nil
}

// Submission validates the draft and builds the persistence payload. The tax
// percent is converted to a 0-1 fraction and other costs are collapsed to
// their total.
func (d *Draft) Submission() (model.Submission, error) {
	if err := d.Validate(); err != nil {
		return model.Submission{}, err
	}

	items := make([]model.SubmissionItem, 0, len(d.Items))
	for _, item := range d.Items {
		si := model.SubmissionItem{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			RawUnitCost: item.UnitCost,
		}
		if item.ProductID == "" {
			si.NewProduct = newProductFor(item)
		}
		items = append(items, si)
	}

	return model.Submission{
		InvoiceNumber: strings.TrimSpace(d.InvoiceNumber),
		InvoiceKey:    strings.TrimSpace(d.InvoiceKey),
		SupplierID:    d.SupplierID,
		EntryDate:     d.EntryDate,
		FreightCost:   d.Costs.Freight,
		TaxPercent:    money.PercentToFraction(d.Costs.TaxPercent),
		OtherCosts:    d.Costs.OtherCostsTotal(),
		Notes:         strings.TrimSpace(d.Notes),
		Items:         items,
		Installments:  slices.Clone(d.Installments),
	}, nil
}

func (d *Draft) checkItem(item model.LineItem, skip int) error {
	if !item.Quantity.IsPositive() {
		return model.NewValidationError("quantity", item.Quantity.String(), model.RulePositive, "quantity must be greater than zero")
	}
	if !item.UnitCost.IsPositive() {
		return model.NewValidationError("unit_cost", item.UnitCost.String(), model.RulePositive, "unit cost must be greater than zero")
	}
	if item.ProductID == "" && productName(item) == "" {
		return model.NewValidationError("name", nil, model.RuleRequired, "new product needs a name")
	}
	if item.ProductID == "" {
		return nil
	}
	for i, existing := range d.Items {
		if i != skip && existing.ProductID == item.ProductID {
			return ErrDuplicateProduct
		}
	}
	return nil
}

func (d *Draft) checkIndex(i int) error {
	if i < 0 || i >= len(d.Items) {
		return model.NewValidationError("items", i, model.RuleIndex, "no such item")
	}
	return nil
}

func productName(item model.LineItem) string {
	if item.NewProduct != nil && strings.TrimSpace(item.NewProduct.Name) != "" {
		return strings.TrimSpace(item.NewProduct.Name)
	}
	return strings.TrimSpace(item.Name)
}

func newProductFor(item model.LineItem) *model.NewProduct {
	if item.NewProduct != nil {
		np := *item.NewProduct
		np.Name = productName(item)
		return &np
	}
	return &model.NewProduct{
		Name: productName(item),
		SKU:  item.SKU,
		NCM:  item.NCM,
	}
}
