package signature

import "context"

// FormatNFe identifies SEFAZ signed XML documents (NF-e, events)
const FormatNFe = "nfe"

// Verifier verifies the digital signature of a document
type Verifier interface {
	// Verify returns a result with the outcome of every check. The error is
	// non-nil only when no verification could be attempted.
	Verify(ctx context.Context, data []byte) (*VerificationResult, error)

	// CanVerify reports whether data looks like a document this verifier handles
	CanVerify(data []byte) bool

	Format() string
}
