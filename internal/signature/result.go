package signature

import (
	"crypto/x509"
	"strings"
	"time"
)

// VerificationResult contains the complete signature verification outcome
type VerificationResult struct {
	// Valid is true only if every check passed
	Valid bool `json:"valid"`

	SignatureFound bool `json:"signature_found"`
	SignatureValid bool `json:"signature_valid"`
	CertChainValid bool `json:"cert_chain_valid"`
	NotRevoked     bool `json:"not_revoked"`

	// ReferenceURI is the signed element reference, e.g. "#NFe3524..."
	ReferenceURI string `json:"reference_uri,omitempty"`
	// AccessKey is the 44-digit key taken from the signed element's Id
	AccessKey string `json:"access_key,omitempty"`
	// IssuerDocument is the emitter CNPJ/CPF read from the signed document
	IssuerDocument string `json:"issuer_document,omitempty"`

	Signer *SignerInfo `json:"signer,omitempty"`

	// SignedAt is the document issue time (dhEmi / dhEvento)
	SignedAt *time.Time `json:"signed_at,omitempty"`

	CertChain []*x509.Certificate `json:"-"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	Format string `json:"format,omitempty"`
}

// SignerInfo contains certificate subject information
type SignerInfo struct {
	Name string `json:"name"`
	// Document is the CNPJ/CPF embedded in an ICP-Brasil common name
	// ("RAZAO SOCIAL:12345678000190")
	Document     string    `json:"document,omitempty"`
	Organization string    `json:"organization,omitempty"`
	SerialNumber string    `json:"serial_number"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

// NewVerificationResult creates a new empty result
func NewVerificationResult() *VerificationResult {
	return &VerificationResult{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}
}

// AddWarning adds a warning message to the result
func (r *VerificationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError adds an error message and sets Valid to false
func (r *VerificationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// SetSigner populates SignerInfo from an x509 certificate
func (r *VerificationResult) SetSigner(cert *x509.Certificate) {
	if cert == nil {
		return
	}

	name, doc := SplitICPBrasilName(cert.Subject.CommonName)
	signer := &SignerInfo{
		Name:         name,
		Document:     doc,
		SerialNumber: cert.SerialNumber.String(),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}
	if len(cert.Subject.Organization) > 0 {
		signer.Organization = cert.Subject.Organization[0]
	}
	if cert.Issuer.CommonName != "" {
		signer.Issuer = cert.Issuer.CommonName
	} else if len(cert.Issuer.Organization) > 0 {
		signer.Issuer = cert.Issuer.Organization[0]
	}

	r.Signer = signer
}

// CheckSignerMatchesIssuer warns when the certificate's CNPJ root (first 8
// digits) differs from the emitter's. Branches share the root.
func (r *VerificationResult) CheckSignerMatchesIssuer() {
	if r.Signer == nil || r.Signer.Document == "" || r.IssuerDocument == "" {
		return
	}
	if cnpjRoot(r.Signer.Document) != cnpjRoot(r.IssuerDocument) {
		r.AddWarning("certificate document " + r.Signer.Document + " does not match emitter " + r.IssuerDocument)
	}
}

// ComputeValidity sets the Valid field based on individual check results
func (r *VerificationResult) ComputeValidity() {
	r.Valid = r.SignatureFound &&
		r.SignatureValid &&
		r.CertChainValid &&
		r.NotRevoked &&
		len(r.Errors) == 0
}

// SplitICPBrasilName splits "NAME:DOCUMENT" common names used by ICP-Brasil
// e-CNPJ and e-CPF certificates. Names without a numeric suffix are returned
// unchanged.
func SplitICPBrasilName(cn string) (name, document string) {
	idx := strings.LastIndex(cn, ":")
	if idx < 0 {
		return cn, ""
	}
	suffix := cn[idx+1:]
	if suffix == "" || strings.Trim(suffix, "0123456789") != "" {
		return cn, ""
	}
	return cn[:idx], suffix
}

func cnpjRoot(doc string) string {
	if len(doc) == 14 {
		return doc[:8]
	}
	return doc
}
