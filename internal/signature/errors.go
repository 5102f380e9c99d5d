package signature

import (
	"fmt"
	"strings"
)

// Error codes for signature verification
const (
	ErrCodeNoSignature       = "NO_SIGNATURE"
	ErrCodeInvalidSignature  = "INVALID_SIGNATURE"
	ErrCodeReferenceMismatch = "REFERENCE_MISMATCH"
	ErrCodeCertExpired       = "CERT_EXPIRED"
	ErrCodeCertRevoked       = "CERT_REVOKED"
	ErrCodeChainInvalid      = "CHAIN_INVALID"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"

	// ErrCodeRevocationUnknown: neither OCSP nor the CRL gave an answer
	ErrCodeRevocationUnknown = "REVOCATION_UNKNOWN"
)

// SignatureError is one failed check. Code is stable for API clients; Field
// names the part of the signature that failed.
type SignatureError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *SignatureError) Error() string {
	var b strings.Builder
	b.WriteString("[" + e.Code + "] ")
	if e.Field != "" {
		b.WriteString(e.Field + ": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	return b.String()
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// Is matches signature errors by code
func (e *SignatureError) Is(target error) bool {
	t, ok := target.(*SignatureError)
	return ok && t.Code == e.Code
}

// NewSignatureError creates a new signature error
func NewSignatureError(code, field, message string, cause error) *SignatureError {
	return &SignatureError{
		Code:    code,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ErrNoSignature returns error when the document carries no XMLDSig signature
func ErrNoSignature() *SignatureError {
	return NewSignatureError(ErrCodeNoSignature, "", "no signature found in document", nil)
}

// ErrInvalidSignature returns error when the signature does not validate
func ErrInvalidSignature(cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidSignature, "signature", "signature validation failed", cause)
}

// ErrReferenceMismatch returns error when the signature references an element
// that is not in the document
func ErrReferenceMismatch(uri string) *SignatureError {
	return NewSignatureError(ErrCodeReferenceMismatch, "reference", fmt.Sprintf("signed element %q not found", uri), nil)
}

// ErrCertExpired returns error when the signing certificate was not valid at signing time
func ErrCertExpired(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertExpired, "certificate", fmt.Sprintf("certificate not valid at signing time: %s", subject), nil)
}

// ErrCertRevoked returns error when certificate has been revoked
func ErrCertRevoked(subject string) *SignatureError {
	return NewSignatureError(ErrCodeCertRevoked, "certificate", fmt.Sprintf("certificate revoked: %s", subject), nil)
}

// ErrChainInvalid returns error when certificate chain is invalid
func ErrChainInvalid(cause error) *SignatureError {
	return NewSignatureError(ErrCodeChainInvalid, "chain", "certificate chain validation failed", cause)
}

// ErrRevocationUnknown returns error when the revocation status could not be
// established
func ErrRevocationUnknown(cause error) *SignatureError {
	return NewSignatureError(ErrCodeRevocationUnknown, "revocation", "revocation status unknown", cause)
}

// ErrUnsupportedFormat returns error for documents that are not NF-e XML
func ErrUnsupportedFormat(format string) *SignatureError {
	return NewSignatureError(ErrCodeUnsupportedFormat, "", fmt.Sprintf("unsupported format: %s", format), nil)
}
