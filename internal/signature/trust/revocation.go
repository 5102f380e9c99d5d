package trust

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Revocation lookup defaults
const (
	DefaultOCSPTimeout = 10 * time.Second
	DefaultStatusTTL   = time.Hour
)

// errNoRevocationSource marks certificates that name neither an OCSP
// responder nor a CRL distribution point
var errNoRevocationSource = errors.New("certificate has no OCSP responder or CRL distribution point")

// CheckRevocation reports whether cert is still good. The OCSP responders
// are asked first; when they are absent or all fail, the issuer's CRL is
// consulted. Certificates that name no revocation source count as good.
//
// In soft-fail mode a failed lookup returns true together with the error so
// callers can surface it as a warning.
func (s *TrustStore) CheckRevocation(ctx context.Context, cert *x509.Certificate, issuer *x509.Certificate) (bool, error) {
	if cert == nil || issuer == nil {
		return false, fmt.Errorf("certificate or issuer is nil")
	}

	if good, found := s.status.get(cert); found {
		return good, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.ocspTimeout)
	defer cancel()

	revoked, err := s.lookup(ctx, cert, issuer)
	switch {
	case errors.Is(err, errNoRevocationSource):
		return true, nil
	case err != nil && s.softFail:
		return true, fmt.Errorf("revocation check failed (soft-fail enabled): %w", err)
	case err != nil:
		return false, fmt.Errorf("revocation check failed: %w", err)
	}

	s.status.set(cert, !revoked)
	return !revoked, nil
}

func (s *TrustStore) lookup(ctx context.Context, cert, issuer *x509.Certificate) (revoked bool, err error) {
	var errs []error
	if len(cert.OCSPServer) > 0 {
		revoked, err := CheckOCSP(ctx, s.httpClient, cert, issuer)
		if err == nil {
			return revoked, nil
		}
		errs = append(errs, err)
	}
	if len(cert.CRLDistributionPoints) > 0 {
		revoked, err := s.checkCRL(ctx, cert, issuer)
		if err == nil {
			return revoked, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return false, errNoRevocationSource
	}
	return false, errors.Join(errs...)
}

// statusCache keeps revocation answers per issuer and serial for a fixed TTL
type statusCache struct {
	mu      sync.Mutex
	entries map[string]statusEntry
	ttl     time.Duration
	now     func() time.Time
}

type statusEntry struct {
	good      bool
	expiresAt time.Time
}

func newStatusCache(ttl time.Duration) *statusCache {
	return &statusCache{
		entries: make(map[string]statusEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *statusCache) get(cert *x509.Certificate) (good, found bool) {
	if cert == nil {
		return false, false
	}
	key := certKey(cert)

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return false, false
	}
	return entry.good, true
}

func (c *statusCache) set(cert *x509.Certificate, good bool) {
	if cert == nil {
		return
	}
	c.mu.Lock()
	c.entries[certKey(cert)] = statusEntry{good: good, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *statusCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// certKey identifies a certificate by issuer and serial number
func certKey(cert *x509.Certificate) string {
	return cert.Issuer.String() + "|" + cert.SerialNumber.String()
}
