// Package nfelib provides a public API for importing Brazilian NF-e invoices
// and allocating their extra costs.
//
// This package exposes the core types and helpers for extracting NF-e XML,
// seeding a purchase entry and computing the rateio of freight, taxes and
// other costs across the purchased items.
//
// Example usage:
//
//	proc := nfelib.NewDefaultProcessor()
//	res, err := proc.ProcessXML(ctx, reader)
//	if err != nil {
//	    log.Fatal(nfelib.UserMessage)
//	}
//	alloc := nfelib.AllocateInvoice(res.Invoice)
//	fmt.Println(nfelib.FormatBRL(alloc.Total))
package nfelib

import (
	"github.com/rezonia/nfe-entry/internal/allocation"
	"github.com/rezonia/nfe-entry/internal/entry"
	"github.com/rezonia/nfe-entry/internal/model"
	"github.com/rezonia/nfe-entry/internal/processor"
)

// Re-export core types for public API
type (
	ParsedInvoice = model.ParsedInvoice
	ParsedItem    = model.ParsedItem
	TaxBreakdown  = model.TaxBreakdown
	Installment   = model.Installment
	LineItem      = model.LineItem
	NewProduct    = model.NewProduct
	OtherCost     = model.OtherCost
	ExtraCosts    = model.ExtraCosts
	AllocatedItem = model.AllocatedItem
	Submission    = model.Submission
	Allocation    = allocation.Result
	Draft         = entry.Draft
)

// Re-export error types
type (
	ParseError      = model.ParseError
	ValidationError = model.ValidationError
	ExtractionError = model.ExtractionError
)

// Re-export sentinel errors
var (
	ErrEmptyInvoice     = model.ErrEmptyInvoice
	ErrDuplicateProduct = entry.ErrDuplicateProduct
)

// UserMessage is the single message to show end users when an import fails
const UserMessage = processor.UserMessage
