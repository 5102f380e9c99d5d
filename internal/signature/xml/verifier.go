package xml

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/rezonia/nfe-entry/internal/signature"
	"github.com/rezonia/nfe-entry/internal/signature/trust"
)

// NFeVerifier verifies the XMLDSig signature of NF-e documents and events
type NFeVerifier struct {
	trustStore *trust.TrustStore
	extractor  *SignatureExtractor
	now        func() time.Time
}

// NewNFeVerifier creates a verifier backed by the given trust store
func NewNFeVerifier(ts *trust.TrustStore) *NFeVerifier {
	return &NFeVerifier{
		trustStore: ts,
		extractor:  NewSignatureExtractor(),
		now:        time.Now,
	}
}

// Verify checks the signature math, the certificate chain at issue time and
// revocation. Failures of individual checks are reported in the result; the
// error is set only when no signature could be located.
func (v *NFeVerifier) Verify(ctx context.Context, data []byte) (*signature.VerificationResult, error) {
	result := signature.NewVerificationResult()
	result.Format = signature.FormatNFe

	extraction, err := v.extractor.Extract(data)
	if err != nil {
		result.AddError(err.Error())
		return result, err
	}

	result.SignatureFound = true
	result.ReferenceURI = extraction.ReferenceURI
	result.AccessKey = accessKeyFromURI(extraction.ReferenceURI)
	result.IssuerDocument = issuerDocument(extraction.SignedElement)

	signedAt := signingTime(extraction.SignedElement)
	if signedAt != nil {
		result.SignedAt = signedAt
	}

	cert, intermediates, err := parseCertificates(extraction.SignatureElement)
	if err != nil {
		result.AddError(fmt.Sprintf("certificate: %v", err))
		result.ComputeValidity()
		return result, nil
	}
	result.SetSigner(cert)

	if err := v.validateSignature(extraction, cert); err != nil {
		result.AddError(signature.ErrInvalidSignature(err).Error())
	} else {
		result.SignatureValid = true
	}

	at := v.now()
	if signedAt != nil {
		at = *signedAt
	}
	if at.Before(cert.NotBefore) || at.After(cert.NotAfter) {
		result.AddError(signature.ErrCertExpired(cert.Subject.CommonName).Error())
	}

	chain, err := v.trustStore.VerifyChain(cert, intermediates, at)
	if err != nil {
		result.AddError(signature.ErrChainInvalid(err).Error())
	} else {
		result.CertChain = chain
		result.CertChainValid = true
		v.checkRevocation(ctx, result, cert, chain)
	}

	result.CheckSignerMatchesIssuer()
	result.ComputeValidity()
	return result, nil
}

func (v *NFeVerifier) checkRevocation(ctx context.Context, result *signature.VerificationResult, cert *x509.Certificate, chain []*x509.Certificate) {
	if len(chain) < 2 {
		result.NotRevoked = true
		result.AddWarning("revocation check skipped: no issuer certificate in chain")
		return
	}

	notRevoked, err := v.trustStore.CheckRevocation(ctx, cert, chain[1])
	if err != nil {
		if v.trustStore.IsSoftFail() {
			result.AddWarning(fmt.Sprintf("revocation: %v", err))
			result.NotRevoked = true
			return
		}
		result.AddError(signature.ErrRevocationUnknown(err).Error())
		return
	}
	result.NotRevoked = notRevoked
	if !notRevoked {
		result.AddError(signature.ErrCertRevoked(cert.Subject.CommonName).Error())
	}
}

// validateSignature checks digest and signature value only. The embedded
// certificate is the sole trusted key here; chain trust is checked apart.
func (v *NFeVerifier) validateSignature(extraction *ExtractionResult, cert *x509.Certificate) error {
	ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	ctx.IdAttribute = "Id"
	ctx.Clock = dsig.NewFakeClockAt(cert.NotBefore)

	_, err := ctx.Validate(envelope(extraction))
	return err
}

// CanVerify returns true for XML carrying an XMLDSig signature
func (v *NFeVerifier) CanVerify(data []byte) bool {
	return v.extractor.CanExtract(data)
}

// Format returns the format this verifier handles
func (v *NFeVerifier) Format() string {
	return signature.FormatNFe
}

// envelope returns a detached copy of the signed element holding the
// signature as a child, which is the enveloped shape goxmldsig validates.
// Namespace declarations inherited from ancestors are copied onto it so that
// canonicalization sees the same in-scope namespaces.
func envelope(extraction *ExtractionResult) *etree.Element {
	signed := extraction.SignedElement.Copy()

	for p := extraction.SignedElement.Parent(); p != nil; p = p.Parent() {
		for _, attr := range p.Attr {
			if attr.Space != "xmlns" && !(attr.Space == "" && attr.Key == "xmlns") {
				continue
			}
			if signed.SelectAttr(attr.FullKey()) == nil {
				signed.CreateAttr(attr.FullKey(), attr.Value)
			}
		}
	}

	if !isDescendant(extraction.SignatureElement, extraction.SignedElement) {
		signed.AddChild(extraction.SignatureElement.Copy())
	}
	return signed
}

func isDescendant(el, ancestor *etree.Element) bool {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p == ancestor {
			return true
		}
	}
	return false
}

func parseCertificates(sig *etree.Element) (*x509.Certificate, []*x509.Certificate, error) {
	data, err := ExtractCertificateData(sig)
	if err != nil {
		return nil, nil, err
	}

	certs := make([]*x509.Certificate, 0, len(data))
	for _, b64 := range data {
		der, err := base64.StdEncoding.DecodeString(string(stripSpace(b64)))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs[0], certs[1:], nil
}

// stripSpace removes line breaks some emitters put inside base64 values
func stripSpace(b []byte) []byte {
	return bytes.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, b)
}

// accessKeyFromURI reads the chave from a signed reference: "NFe" + key for
// an invoice, "ID" + tpEvento (6) + key + nSeq (2) for an event
func accessKeyFromURI(uri string) string {
	id := strings.TrimPrefix(uri, "#")
	if rest, ok := strings.CutPrefix(id, "ID"); ok {
		if len(rest) < 6+accessKeyLen || !allDigits(rest) {
			return ""
		}
		return rest[6 : 6+accessKeyLen]
	}
	id = strings.TrimPrefix(id, "NFe")
	if len(id) != accessKeyLen || !allDigits(id) {
		return ""
	}
	return id
}

const accessKeyLen = 44

func allDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

// issuerDocument reads the emitter CNPJ (or CPF) of an infNFe or the
// author of an event
func issuerDocument(signed *etree.Element) string {
	scope := signed
	if emit := childByTag(signed, "emit"); emit != nil {
		scope = emit
	}
	for _, tag := range []string{"CNPJ", "CPF"} {
		if el := childByTag(scope, tag); el != nil {
			if text := strings.TrimSpace(el.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// signingTime returns the issue time of the signed element. NF-e signatures
// carry no signing-time property, so dhEmi (or dhEvento) is used.
func signingTime(signed *etree.Element) *time.Time {
	scopes := []*etree.Element{signed}
	if ide := childByTag(signed, "ide"); ide != nil {
		scopes = append([]*etree.Element{ide}, scopes...)
	}
	for _, scope := range scopes {
		for _, tag := range []string{"dhEmi", "dhEvento", "dhRecbto"} {
			el := childByTag(scope, tag)
			if el == nil {
				continue
			}
			text := strings.TrimSpace(el.Text())
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
				if t, err := time.Parse(layout, text); err == nil {
					return &t
				}
			}
		}
	}
	return nil
}
