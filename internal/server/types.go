package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/nfe-entry/internal/allocation"
	"github.com/rezonia/nfe-entry/internal/entry"
	"github.com/rezonia/nfe-entry/internal/model"
)

// ImportResponse is the response for NF-e and DANFE imports: the parsed
// invoice plus a draft seeded from it and the draft's allocation
type ImportResponse struct {
	Invoice    *model.ParsedInvoice `json:"invoice"`
	Method     string               `json:"method"`
	Confidence float64              `json:"confidence"`
	Warnings   []string             `json:"warnings,omitempty"`
	Draft      *entry.Draft         `json:"draft"`
	Allocation allocation.Result    `json:"allocation"`
	// SupplierFound is true when the supplier document matched a registered supplier
	SupplierFound bool `json:"supplier_found"`
}

// AllocationRequest is the body of POST /allocation
type AllocationRequest struct {
	Items   []model.LineItem `json:"items"`
	Freight decimal.Decimal  `json:"freight"`
	// TaxPercent (0-100); the configured default applies when absent
	TaxPercent *decimal.Decimal  `json:"tax_percent"`
	OtherCosts []model.OtherCost `json:"other_costs"`
}

// EntryResponse is a persisted entry with its recomputed allocation
type EntryResponse struct {
	model.Entry
	Allocation allocation.Result `json:"allocation"`
}

// ListResponse is the response for GET /entries
type ListResponse struct {
	Entries []model.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// InfoResponse is the response for info endpoint
type InfoResponse struct {
	Format   string `json:"format"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Details  string   `json:"details,omitempty"`
	Field    string   `json:"field,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// VerifyResponse is the response for signature verification endpoint
type VerifyResponse struct {
	Valid          bool              `json:"valid"`
	SignatureFound bool              `json:"signature_found"`
	SignatureValid bool              `json:"signature_valid"`
	CertChainValid bool              `json:"cert_chain_valid"`
	NotRevoked     bool              `json:"not_revoked"`
	Format         string            `json:"format,omitempty"`
	AccessKey      string            `json:"access_key,omitempty"`
	IssuerDocument string            `json:"issuer_document,omitempty"`
	Signer         *SignerInfoOutput `json:"signer,omitempty"`
	SignedAt       *time.Time        `json:"signed_at,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	Errors         []string          `json:"errors,omitempty"`
}

// SignerInfoOutput holds signer info for API response
type SignerInfoOutput struct {
	Name         string     `json:"name,omitempty"`
	Document     string     `json:"document,omitempty"`
	Organization string     `json:"organization,omitempty"`
	SerialNumber string     `json:"serial_number,omitempty"`
	Issuer       string     `json:"issuer,omitempty"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`
}
