// Package nfe extracts purchase data from Brazilian NF-e XML documents.
package nfe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/htmlindex"

	money "github.com/rezonia/nfe-entry/internal/decimal"
	"github.com/rezonia/nfe-entry/internal/model"
)

// Extractor parses NF-e documents (bare <NFe> or <nfeProc>-wrapped)
type Extractor struct {
	now func() time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithClock sets the clock used when the document carries no issue date
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor creates a new NF-e extractor
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Source returns the source type
func (e *Extractor) Source() model.Source {
	return model.SourceXML
}

// CanParse checks for NF-e markers
func (e *Extractor) CanParse(content []byte) bool {
	return bytes.Contains(content, []byte("infNFe")) ||
		bytes.Contains(content, []byte("nfeProc")) ||
		bytes.Contains(content, []byte("portalfiscal.inf.br/nfe"))
}

// Parse reads an NF-e document from r
func (e *Extractor) Parse(ctx context.Context, r io.Reader) (*model.ParsedInvoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.SourceXML, "content", "failed to read content", err)
	}
	return e.ParseBytes(content)
}

// ParseBytes parses an NF-e document. Only a document that is not XML at
// all fails; missing fields resolve to empty strings and zero amounts.
func (e *Extractor) ParseBytes(content []byte) (*model.ParsedInvoice, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, model.NewParseError(model.SourceXML, "xml", "failed to parse XML", err)
	}
	if doc.Root() == nil {
		return nil, model.NewParseError(model.SourceXML, "xml", "empty XML document", nil)
	}

	result := e.extract(node{el: &doc.Element})
	result.RawXML = content
	return result, nil
}

func (e *Extractor) extract(doc node) *model.ParsedInvoice {
	ide := doc.child("ide").or(doc)
	emit := doc.child("emit")
	totals := doc.child("ICMSTot")

	result := &model.ParsedInvoice{
		InvoiceNumber:     ide.text("nNF"),
		Series:            ide.text("serie"),
		Model:             ide.text("mod"),
		InvoiceKey:        accessKey(doc),
		SupplierName:      emit.text("xNome"),
		SupplierTradeName: emit.text("xFant"),
		SupplierDoc:       onlyDigits(emit.text("CNPJ", "CPF")),
		SupplierStateReg:  emit.text("IE"),
		Source:            model.SourceXML,
	}

	if issued, ok := parseDate(ide.text("dhEmi", "dEmi")); ok {
		result.IssueDate = issued
		result.EntryDate = issued
	} else {
		result.EntryDate = dateOnly(e.now())
	}

	for _, det := range doc.all("det") {
		if item, ok := convertItem(det); ok {
			result.Items = append(result.Items, item)
		}
	}

	result.FreightCost = amount(totals, "vFrete")
	result.Taxes = model.TaxBreakdown{
		ICMS:   amount(totals, "vICMS"),
		ICMSST: amount(totals, "vST"),
		IPI:    amount(totals, "vIPI"),
		PIS:    amount(totals, "vPIS"),
		COFINS: amount(totals, "vCOFINS"),
		Other:  amount(totals, "vOutro"),
	}
	result.TotalTax = result.Taxes.Total()
	result.ProductsTotal = amount(totals, "vProd")
	result.Discount = amount(totals, "vDesc")
	result.Insurance = amount(totals, "vSeg")
	result.InvoiceTotal = amount(totals, "vNF")

	for _, dup := range doc.child("cobr").all("dup") {
		inst := model.Installment{
			Number: dup.text("nDup"),
			Amount: amount(dup, "vDup"),
		}
		if due, ok := parseDate(dup.text("dVenc")); ok {
			inst.DueDate = due
		}
		result.Installments = append(result.Installments, inst)
	}

	return result
}

// accessKey prefers infNFe@Id (minus the "NFe" prefix) and falls back to chNFe
func accessKey(doc node) string {
	if id := doc.child("infNFe").attr("Id"); id != "" {
		return strings.TrimPrefix(id, "NFe")
	}
	return doc.text("chNFe")
}

// convertItem maps a <det> block; items without a name or with a
// non-positive quantity are dropped
func convertItem(det node) (model.ParsedItem, bool) {
	prod := det.child("prod")
	if !prod.exists() {
		prod = det
	}

	item := model.ParsedItem{
		Name:     prod.text("xProd"),
		NCM:      prod.text("NCM"),
		SKU:      prod.text("cProd"),
		EAN:      gtin(prod.text("cEAN")),
		CFOP:     prod.text("CFOP"),
		Unit:     prod.text("uCom", "uTrib"),
		Quantity: amount(prod, "qCom", "qTrib"),
		UnitCost: amount(prod, "vUnCom", "vUnTrib"),
	}
	if n, err := strconv.Atoi(det.attr("nItem")); err == nil {
		item.Number = n
	}

	if item.Name == "" || !item.Quantity.IsPositive() {
		return model.ParsedItem{}, false
	}
	return item, true
}

func amount(n node, names ...string) decimal.Decimal {
	return money.ParseOrZero(n.text(names...))
}

func gtin(s string) string {
	if strings.EqualFold(s, "SEM GTIN") {
		return ""
	}
	return s
}

// charsetReader decodes documents declaring a non-UTF-8 encoding, as SEFAZ
// emitters still produce ISO-8859-1 files
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// parseDate keeps only the calendar date of dhEmi/dEmi/dVenc values
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
