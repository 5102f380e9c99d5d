package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"
)

func createCert(t *testing.T, subject pkix.Name) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(12345),
		Subject:      subject,
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestVerificationResult_JSON(t *testing.T) {
	signedAt := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

	result := &VerificationResult{
		Valid:          true,
		SignatureFound: true,
		SignatureValid: true,
		CertChainValid: true,
		NotRevoked:     true,
		ReferenceURI:   "#NFe35240312345678000190550010000001231000001234",
		AccessKey:      "35240312345678000190550010000001231000001234",
		SignedAt:       &signedAt,
		Format:         FormatNFe,
		Signer: &SignerInfo{
			Name:         "DISTRIBUIDORA EXEMPLO LTDA",
			Document:     "12345678000190",
			SerialNumber: "1234567890",
			Issuer:       "AC SOLUTI Multipla v5",
		},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if raw["access_key"] != result.AccessKey {
		t.Errorf("access_key: got %v, want %v", raw["access_key"], result.AccessKey)
	}
	if raw["format"] != FormatNFe {
		t.Errorf("format: got %v, want %v", raw["format"], FormatNFe)
	}
	signer, ok := raw["signer"].(map[string]interface{})
	if !ok {
		t.Fatal("signer missing from JSON")
	}
	if signer["document"] != "12345678000190" {
		t.Errorf("signer.document: got %v", signer["document"])
	}
	if _, exists := raw["cert_chain"]; exists {
		t.Error("cert_chain should not be serialized to JSON")
	}
}

func TestVerificationResult_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(&VerificationResult{})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal to map: %v", err)
	}

	for _, key := range []string{"signer", "signed_at", "access_key", "reference_uri"} {
		if _, exists := raw[key]; exists {
			t.Errorf("%s should be omitted when empty", key)
		}
	}
}

func TestVerificationResult_SetSigner(t *testing.T) {
	cert := createCert(t, pkix.Name{
		CommonName:   "DISTRIBUIDORA EXEMPLO LTDA:12345678000190",
		Organization: []string{"ICP-Brasil"},
	})

	result := NewVerificationResult()
	result.SetSigner(cert)

	if result.Signer == nil {
		t.Fatal("Signer is nil after SetSigner")
	}
	if result.Signer.Name != "DISTRIBUIDORA EXEMPLO LTDA" {
		t.Errorf("Name: got %v", result.Signer.Name)
	}
	if result.Signer.Document != "12345678000190" {
		t.Errorf("Document: got %v", result.Signer.Document)
	}
	if result.Signer.Organization != "ICP-Brasil" {
		t.Errorf("Organization: got %v", result.Signer.Organization)
	}
	if result.Signer.SerialNumber != "12345" {
		t.Errorf("SerialNumber: got %v, want 12345", result.Signer.SerialNumber)
	}

	result.SetSigner(nil)
	if result.Signer == nil {
		t.Error("SetSigner(nil) should keep the previous signer")
	}
}

func TestSplitICPBrasilName(t *testing.T) {
	tests := []struct {
		cn       string
		name     string
		document string
	}{
		{"EMPRESA LTDA:12345678000190", "EMPRESA LTDA", "12345678000190"},
		{"FULANO DE TAL:12345678909", "FULANO DE TAL", "12345678909"},
		{"EMPRESA: FILIAL SUL", "EMPRESA: FILIAL SUL", ""},
		{"EMPRESA LTDA", "EMPRESA LTDA", ""},
		{"EMPRESA:", "EMPRESA:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.cn, func(t *testing.T) {
			name, doc := SplitICPBrasilName(tt.cn)
			if name != tt.name || doc != tt.document {
				t.Errorf("got (%q, %q), want (%q, %q)", name, doc, tt.name, tt.document)
			}
		})
	}
}

func TestVerificationResult_CheckSignerMatchesIssuer(t *testing.T) {
	tests := []struct {
		name         string
		signerDoc    string
		issuerDoc    string
		wantWarnings int
	}{
		{"same CNPJ", "12345678000190", "12345678000190", 0},
		{"branch of same company", "12345678000190", "12345678000270", 0},
		{"different company", "99999999000191", "12345678000190", 1},
		{"unknown signer document", "", "12345678000190", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewVerificationResult()
			result.Signer = &SignerInfo{Document: tt.signerDoc}
			result.IssuerDocument = tt.issuerDoc
			result.CheckSignerMatchesIssuer()

			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("warnings: got %v, want %d", result.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestVerificationResult_ComputeValidity(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*VerificationResult)
		expected bool
	}{
		{
			name: "all checks pass",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.SignatureValid = true
				r.CertChainValid = true
				r.NotRevoked = true
			},
			expected: true,
		},
		{
			name: "signature invalid",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.CertChainValid = true
				r.NotRevoked = true
			},
			expected: false,
		},
		{
			name: "chain invalid",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.SignatureValid = true
				r.NotRevoked = true
			},
			expected: false,
		},
		{
			name: "has errors",
			setup: func(r *VerificationResult) {
				r.SignatureFound = true
				r.SignatureValid = true
				r.CertChainValid = true
				r.NotRevoked = true
				r.Errors = []string{"some error"}
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewVerificationResult()
			tt.setup(result)
			result.ComputeValidity()

			if result.Valid != tt.expected {
				t.Errorf("Valid: got %v, want %v", result.Valid, tt.expected)
			}
		})
	}
}

func TestSignatureError(t *testing.T) {
	err := ErrInvalidSignature(errors.New("digest mismatch"))

	if got := err.Error(); got != "[INVALID_SIGNATURE] signature: signature validation failed (digest mismatch)" {
		t.Errorf("Error(): got %q", got)
	}
	if !errors.Is(err, ErrInvalidSignature(nil)) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, ErrNoSignature()) {
		t.Error("errors.Is should not match a different code")
	}
	if got := ErrNoSignature().Error(); got != "[NO_SIGNATURE] no signature found in document" {
		t.Errorf("Error(): got %q", got)
	}
}
