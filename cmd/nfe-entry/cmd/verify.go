package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-entry/internal/signature"
	"github.com/rezonia/nfe-entry/internal/signature/trust"
	"github.com/rezonia/nfe-entry/internal/signature/xml"
)

var (
	caFile   string
	certsDir string
	skipOCSP bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Verify NF-e digital signatures",
	Long: `Verify the XMLDSig signature of NF-e documents and events.

Verifies:
  - Signature validity (digest and signature value)
  - Certificate chain (to trusted ICP-Brasil roots)
  - Certificate validity at the document issue time
  - Certificate revocation (OCSP, unless --skip-ocsp)
  - Signer CNPJ matches the invoice emitter

Examples:
  # Verify an authorized NF-e
  nfe-entry verify --ca-file icp-brasil.pem nota.xml

  # Trust every certificate in a directory
  nfe-entry verify --certs-dir /etc/nfe/certs notas/

  # Skip OCSP revocation check
  nfe-entry verify --skip-ocsp nota.xml

  # JSON output
  nfe-entry verify -f json nota.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&caFile, "ca-file", "", "Trusted CA certificate file (PEM or DER)")
	verifyCmd.Flags().StringVar(&certsDir, "certs-dir", "", "Directory of trusted CA certificates")
	verifyCmd.Flags().BoolVar(&skipOCSP, "skip-ocsp", false, "Skip OCSP revocation check")
}

// VerifyResult holds the result of verifying a single file
type VerifyResult struct {
	File           string        `json:"file"`
	Valid          bool          `json:"valid"`
	AccessKey      string        `json:"access_key,omitempty"`
	IssuerDocument string        `json:"issuer_document,omitempty"`
	SignatureFound bool          `json:"signature_found"`
	SignatureValid bool          `json:"signature_valid"`
	CertChainValid bool          `json:"cert_chain_valid"`
	NotRevoked     bool          `json:"not_revoked"`
	Signer         *SignerOutput `json:"signer,omitempty"`
	SignedAt       *time.Time    `json:"signed_at,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// SignerOutput holds signer info for output
type SignerOutput struct {
	Name         string    `json:"name"`
	Document     string    `json:"document,omitempty"`
	Organization string    `json:"organization,omitempty"`
	SerialNumber string    `json:"serial_number"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

// newTrustStore builds the trust store from the signature config, with the
// verify flags taking precedence when set
func newTrustStore(forVerifyCmd bool) (*trust.TrustStore, error) {
	sig := cfg.Signature
	if forVerifyCmd {
		if caFile != "" {
			sig.CAFile = caFile
		}
		if certsDir != "" {
			sig.CertsDir = certsDir
		}
		if skipOCSP {
			sig.SoftFail = true
		}
	}

	var opts []trust.TrustStoreOption
	if sig.CAFile != "" {
		opts = append(opts, trust.WithCustomCertsFromFile(sig.CAFile))
	}
	if sig.CertsDir != "" {
		opts = append(opts, trust.WithCertsDir(sig.CertsDir))
	}
	if sig.SoftFail {
		opts = append(opts, trust.WithSoftFail())
	}
	if sig.OCSPTimeout > 0 {
		opts = append(opts, trust.WithOCSPTimeout(sig.OCSPTimeout))
	}

	ts, err := trust.NewTrustStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trust store: %w", err)
	}
	return ts, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found to verify")
	}

	ts, err := newTrustStore(true)
	if err != nil {
		return err
	}
	printVerbose("Trusted roots: %d\n", ts.Len())

	verifier := xml.NewNFeVerifier(ts)

	results := make([]*VerifyResult, 0, len(files))
	allValid := true

	for _, file := range files {
		printVerbose("Verifying: %s\n", file)

		result := verifyFile(cmd.Context(), verifier, file)
		results = append(results, result)

		if !result.Valid {
			allValid = false
		}
	}

	w := cmd.OutOrStdout()
	if outputFormat == "json" {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		writeVerifyText(w, results)
	}

	if !allValid {
		return fmt.Errorf("verification failed for some files")
	}

	return nil
}

func verifyFile(ctx context.Context, verifier signature.Verifier, filePath string) *VerifyResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	result := &VerifyResult{
		File:     filePath,
		Errors:   []string{},
		Warnings: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to read file: %v", err))
		return result
	}

	if !verifier.CanVerify(data) {
		result.Errors = append(result.Errors, "no XMLDSig signature found")
		return result
	}

	// A non-nil error is already recorded on the result
	vr, _ := verifier.Verify(ctx, data)
	if vr == nil {
		result.Errors = append(result.Errors, "verification could not be attempted")
		return result
	}

	result.Valid = vr.Valid
	result.AccessKey = vr.AccessKey
	result.IssuerDocument = vr.IssuerDocument
	result.SignatureFound = vr.SignatureFound
	result.SignatureValid = vr.SignatureValid
	result.CertChainValid = vr.CertChainValid
	result.NotRevoked = vr.NotRevoked
	result.SignedAt = vr.SignedAt
	result.Errors = append(result.Errors, vr.Errors...)
	result.Warnings = append(result.Warnings, vr.Warnings...)

	if vr.Signer != nil {
		result.Signer = &SignerOutput{
			Name:         vr.Signer.Name,
			Document:     vr.Signer.Document,
			Organization: vr.Signer.Organization,
			SerialNumber: vr.Signer.SerialNumber,
			Issuer:       vr.Signer.Issuer,
			ValidFrom:    vr.Signer.ValidFrom,
			ValidTo:      vr.Signer.ValidTo,
		}
	}

	return result
}

func writeVerifyText(w io.Writer, results []*VerifyResult) {
	for _, r := range results {
		statusIcon := "✓"
		statusText := "VALID"
		if !r.Valid {
			statusIcon = "✗"
			statusText = "INVALID"
		}

		fmt.Fprintf(w, "%s %s: %s\n", statusIcon, r.File, statusText)

		if r.AccessKey != "" {
			fmt.Fprintf(w, "  Chave:  %s\n", r.AccessKey)
		}
		if r.IssuerDocument != "" {
			fmt.Fprintf(w, "  Emitente: %s\n", r.IssuerDocument)
		}

		if r.Signer != nil {
			fmt.Fprintf(w, "  Signer: %s\n", r.Signer.Name)
			if r.Signer.Document != "" {
				fmt.Fprintf(w, "  CNPJ:   %s\n", r.Signer.Document)
			}
			if r.Signer.Issuer != "" {
				fmt.Fprintf(w, "  Issuer: %s\n", r.Signer.Issuer)
			}
		}

		if r.SignedAt != nil {
			fmt.Fprintf(w, "  Signed: %s\n", r.SignedAt.Format(time.RFC3339))
		}

		if r.SignatureFound {
			fmt.Fprintf(w, "  Signature:   %s\n", checkMark(r.SignatureValid))
			fmt.Fprintf(w, "  Cert Chain:  %s\n", checkMark(r.CertChainValid))
			revokeStatus := checkMark(r.NotRevoked)
			if skipOCSP {
				revokeStatus = "- (skipped)"
			}
			fmt.Fprintf(w, "  Not Revoked: %s\n", revokeStatus)
		}

		for _, e := range r.Errors {
			fmt.Fprintf(w, "  ✗ %s\n", e)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  ⚠ %s\n", warn)
		}
	}
}

func checkMark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
