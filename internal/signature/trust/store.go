// Package trust holds the trusted ICP-Brasil roots used to validate NF-e
// signing certificates and checks their revocation status over OCSP or the
// issuer's CRL.
package trust

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TrustStore manages trusted CA certificates and revocation checking
type TrustStore struct {
	roots       *x509.CertPool
	rootCerts   []*x509.Certificate
	status      *statusCache
	crls        *crlCache
	ocspTimeout time.Duration
	httpClient  *http.Client
	softFail    bool
	loadErrs    []error
}

// TrustStoreOption configures a TrustStore
type TrustStoreOption func(*TrustStore)

// NewTrustStore creates a trust store. It starts empty; ICP-Brasil roots are
// added with WithCertsDir or WithCustomCertsFromFile. Load failures of any
// option are reported together.
func NewTrustStore(opts ...TrustStoreOption) (*TrustStore, error) {
	store := &TrustStore{
		roots:       x509.NewCertPool(),
		rootCerts:   make([]*x509.Certificate, 0),
		status:      newStatusCache(DefaultStatusTTL),
		crls:        newCRLCache(),
		ocspTimeout: DefaultOCSPTimeout,
		httpClient:  http.DefaultClient,
	}

	for _, opt := range opts {
		opt(store)
	}

	if len(store.loadErrs) > 0 {
		return store, fmt.Errorf("failed to load trust store: %w", errors.Join(store.loadErrs...))
	}
	return store, nil
}

// WithSoftFail enables soft-fail mode for revocation checks.
// When enabled, unreachable responders and CRLs don't fail verification.
func WithSoftFail() TrustStoreOption {
	return func(s *TrustStore) {
		s.softFail = true
	}
}

// WithOCSPTimeout bounds one revocation lookup, OCSP and CRL download included
func WithOCSPTimeout(d time.Duration) TrustStoreOption {
	return func(s *TrustStore) {
		s.ocspTimeout = d
	}
}

// WithStatusTTL sets how long a revocation answer is reused
func WithStatusTTL(d time.Duration) TrustStoreOption {
	return func(s *TrustStore) {
		s.status = newStatusCache(d)
	}
}

// WithHTTPClient sets the client used for OCSP requests and CRL downloads
func WithHTTPClient(c *http.Client) TrustStoreOption {
	return func(s *TrustStore) {
		s.httpClient = c
	}
}

// WithCustomCertsFromFile adds CA certificates from a PEM or DER file
func WithCustomCertsFromFile(path string) TrustStoreOption {
	return func(s *TrustStore) {
		if err := s.addFile(path); err != nil {
			s.loadErrs = append(s.loadErrs, err)
		}
	}
}

// WithCertsDir adds every .crt, .cer and .pem file of dir, e.g. the unpacked
// ICP-Brasil chain bundle
func WithCertsDir(dir string) TrustStoreOption {
	return func(s *TrustStore) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.loadErrs = append(s.loadErrs, fmt.Errorf("read certs dir: %w", err))
			return
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".crt", ".cer", ".pem":
				if err := s.addFile(filepath.Join(dir, entry.Name())); err != nil {
					s.loadErrs = append(s.loadErrs, err)
				}
			}
		}
	}
}

func (s *TrustStore) addFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := s.AddCertificatesFromPEM(data); err == nil {
		return nil
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return fmt.Errorf("%s: neither PEM nor DER certificate: %w", path, err)
	}
	s.AddCertificate(cert)
	return nil
}

// AddCertificate adds a single certificate to the trust store
func (s *TrustStore) AddCertificate(cert *x509.Certificate) {
	if cert != nil {
		s.roots.AddCert(cert)
		s.rootCerts = append(s.rootCerts, cert)
	}
}

// AddCertificatesFromPEM parses and adds certificates from PEM data
func (s *TrustStore) AddCertificatesFromPEM(pemData []byte) error {
	var certs []*x509.Certificate
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		pemData = rest
	}
	if len(certs) == 0 {
		return fmt.Errorf("no certificates found in PEM data")
	}
	for _, cert := range certs {
		s.AddCertificate(cert)
	}
	return nil
}

// VerifyChain verifies cert against the trusted roots as of at. NF-e are
// checked at their issue time, so an invoice signed before its certificate
// expired stays valid.
func (s *TrustStore) VerifyChain(cert *x509.Certificate, intermediates []*x509.Certificate, at time.Time) ([]*x509.Certificate, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is nil")
	}
	if at.IsZero() {
		at = time.Now()
	}

	var interPool *x509.CertPool
	if len(intermediates) > 0 {
		interPool = x509.NewCertPool()
		for _, inter := range intermediates {
			interPool.AddCert(inter)
		}
	}

	chains, err := cert.Verify(x509.VerifyOptions{
		Roots:         s.roots,
		Intermediates: interPool,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("chain verification failed: %w", err)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("no valid certificate chains found")
	}
	return chains[0], nil
}

// Roots returns the certificate pool
func (s *TrustStore) Roots() *x509.CertPool {
	return s.roots
}

// RootCerts returns the trusted certificates as a slice
func (s *TrustStore) RootCerts() []*x509.Certificate {
	return s.rootCerts
}

// Len returns the number of trusted certificates
func (s *TrustStore) Len() int {
	return len(s.rootCerts)
}

// IsSoftFail returns whether soft-fail mode is enabled
func (s *TrustStore) IsSoftFail() bool {
	return s.softFail
}
