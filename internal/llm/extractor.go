package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/model"
)

// Amount is a number the model may return either as a JSON number or as a
// string in Brazilian notation
type Amount struct {
	decimal.Decimal
}

// UnmarshalJSON accepts 1234.56, "1234.56", "1.234,56", "R$ 1.234,56" and null
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = money.ParseOrZero(strings.Trim(string(data), `"`))
	return nil
}

// LLMResponse is the JSON document the model is asked to produce
type LLMResponse struct {
	InvoiceNumber string      `json:"invoice_number"`
	InvoiceKey    string      `json:"invoice_key"`
	Series        string      `json:"series"`
	Date          string      `json:"date"`
	Supplier      LLMSupplier `json:"supplier"`
	Items         []LLMItem   `json:"items"`
	Freight       Amount      `json:"freight"`
	Taxes         struct {
		ICMS   Amount `json:"icms"`
		ICMSST Amount `json:"icms_st"`
		IPI    Amount `json:"ipi"`
		PIS    Amount `json:"pis"`
		COFINS Amount `json:"cofins"`
		Other  Amount `json:"other"`
	} `json:"taxes"`
	ProductsTotal Amount           `json:"products_total"`
	Discount      Amount           `json:"discount"`
	InvoiceTotal  Amount           `json:"invoice_total"`
	Installments  []LLMInstallment `json:"installments"`
}

// LLMSupplier is the issuer block of the response
type LLMSupplier struct {
	Name              string `json:"name"`
	TradeName         string `json:"trade_name"`
	Document          string `json:"document"`
	StateRegistration string `json:"state_registration"`
}

// LLMItem is one product line of the response
type LLMItem struct {
	Number   int    `json:"number"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	NCM      string `json:"ncm"`
	CFOP     string `json:"cfop"`
	Unit     string `json:"unit"`
	Quantity Amount `json:"quantity"`
	UnitCost Amount `json:"unit_cost"`
}

// LLMInstallment is one duplicata of the response
type LLMInstallment struct {
	Number  string `json:"number"`
	DueDate string `json:"due_date"`
	Amount  Amount `json:"amount"`
}

// Extractor reads NF-e data from DANFE text or images through an LLM
type Extractor struct {
	client      Chatter
	model       string
	visionModel string
	now         func() time.Time
}

// ExtractorOption configures the extractor
type ExtractorOption func(*Extractor)

// WithModel sets the model used for text extraction
func WithModel(model string) ExtractorOption {
	return func(e *Extractor) {
		e.model = model
	}
}

// WithVisionModel sets the model used for image extraction
func WithVisionModel(model string) ExtractorOption {
	return func(e *Extractor) {
		e.visionModel = model
	}
}

// WithClock sets the clock used for the entry date fallback
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor creates an extractor on top of client
func NewExtractor(client Chatter, opts ...ExtractorOption) *Extractor {
	e := &Extractor{client: client, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.visionModel == "" {
		e.visionModel = e.model
	}
	return e
}

// ExtractFromText extracts invoice data from DANFE text (e.g. OCR output)
func (e *Extractor) ExtractFromText(ctx context.Context, text string) (*model.ParsedInvoice, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.NewExtractionError("llm_text", "no text to extract from", nil)
	}

	resp, err := e.client.ChatText(ctx, e.model, SystemPromptInvoiceExtractor, fmt.Sprintf(UserPromptTextExtraction, text))
	if err != nil {
		return nil, model.NewExtractionError("llm_text", "request failed", err)
	}
	return e.decode("llm_text", resp)
}

// ExtractFromImage extracts invoice data from a DANFE image
func (e *Extractor) ExtractFromImage(ctx context.Context, imageData []byte, mimeType string) (*model.ParsedInvoice, error) {
	if len(imageData) == 0 {
		return nil, model.NewExtractionError("llm_vision", "empty image", nil)
	}

	resp, err := e.client.ChatWithImage(ctx, e.visionModel, SystemPromptInvoiceExtractor, UserPromptImageExtraction, imageData, mimeType)
	if err != nil {
		return nil, model.NewExtractionError("llm_vision", "request failed", err)
	}
	return e.decode("llm_vision", resp)
}

func (e *Extractor) decode(method, resp string) (*model.ParsedInvoice, error) {
	var parsed LLMResponse
	if err := json.Unmarshal([]byte(ExtractJSON(resp)), &parsed); err != nil {
		return nil, model.NewExtractionError(method, "response is not valid JSON", err)
	}
	return parsed.ToInvoice(e.now()), nil
}

// ToInvoice converts the response into a ParsedInvoice applying the same
// item rules as the XML extractor
func (r *LLMResponse) ToInvoice(today time.Time) *model.ParsedInvoice {
	inv := &model.ParsedInvoice{
		InvoiceNumber:     strings.TrimSpace(r.InvoiceNumber),
		InvoiceKey:        digits(r.InvoiceKey),
		Series:            strings.TrimSpace(r.Series),
		SupplierName:      strings.TrimSpace(r.Supplier.Name),
		SupplierTradeName: strings.TrimSpace(r.Supplier.TradeName),
		SupplierDoc:       digits(r.Supplier.Document),
		SupplierStateReg:  strings.TrimSpace(r.Supplier.StateRegistration),
		FreightCost:       r.Freight.Decimal,
		Taxes: model.TaxBreakdown{
			ICMS:   r.Taxes.ICMS.Decimal,
			ICMSST: r.Taxes.ICMSST.Decimal,
			IPI:    r.Taxes.IPI.Decimal,
			PIS:    r.Taxes.PIS.Decimal,
			COFINS: r.Taxes.COFINS.Decimal,
			Other:  r.Taxes.Other.Decimal,
		},
		ProductsTotal: r.ProductsTotal.Decimal,
		Discount:      r.Discount.Decimal,
		InvoiceTotal:  r.InvoiceTotal.Decimal,
		Source:        model.SourceLLM,
	}
	inv.TotalTax = inv.Taxes.Total()

	if issued, err := time.Parse("2006-01-02", strings.TrimSpace(r.Date)); err == nil {
		inv.IssueDate = issued
		inv.EntryDate = issued
	} else {
		y, m, d := today.Date()
		inv.EntryDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	for i, item := range r.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" || !item.Quantity.IsPositive() {
			continue
		}
		number := item.Number
		if number == 0 {
			number = i + 1
		}
		inv.Items = append(inv.Items, model.ParsedItem{
			Number:   number,
			Name:     name,
			SKU:      strings.TrimSpace(item.Code),
			NCM:      digits(item.NCM),
			CFOP:     digits(item.CFOP),
			Unit:     strings.TrimSpace(item.Unit),
			Quantity: item.Quantity.Decimal,
			UnitCost: item.UnitCost.Decimal,
		})
	}

	for _, dup := range r.Installments {
		inst := model.Installment{Number: strings.TrimSpace(dup.Number), Amount: dup.Amount.Decimal}
		if due, err := time.Parse("2006-01-02", strings.TrimSpace(dup.DueDate)); err == nil {
			inst.DueDate = due
		}
		inv.Installments = append(inv.Installments, inst)
	}

	return inv
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
