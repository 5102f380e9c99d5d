package trust

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// maxCRLSize caps a downloaded CRL. ICP-Brasil intermediate CRLs run to a
// few megabytes.
const maxCRLSize = 32 << 20

// crlCache keeps downloaded CRLs by URL until their NextUpdate
type crlCache struct {
	mu    sync.Mutex
	lists map[string]*x509.RevocationList
}

func newCRLCache() *crlCache {
	return &crlCache{lists: make(map[string]*x509.RevocationList)}
}

func (c *crlCache) get(url string, now time.Time) *x509.RevocationList {
	c.mu.Lock()
	defer c.mu.Unlock()
	rl, ok := c.lists[url]
	if !ok {
		return nil
	}
	if !rl.NextUpdate.IsZero() && now.After(rl.NextUpdate) {
		delete(c.lists, url)
		return nil
	}
	return rl
}

func (c *crlCache) put(url string, rl *x509.RevocationList) {
	c.mu.Lock()
	c.lists[url] = rl
	c.mu.Unlock()
}

// checkCRL looks cert up in the first distribution point that yields a CRL
// signed by issuer
func (s *TrustStore) checkCRL(ctx context.Context, cert, issuer *x509.Certificate) (revoked bool, err error) {
	var errs []error
	for _, url := range cert.CRLDistributionPoints {
		rl, err := s.revocationList(ctx, url, issuer)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		return onList(rl, cert), nil
	}
	return false, fmt.Errorf("no CRL available: %w", errors.Join(errs...))
}

func (s *TrustStore) revocationList(ctx context.Context, url string, issuer *x509.Certificate) (*x509.RevocationList, error) {
	now := time.Now()
	if rl := s.crls.get(url, now); rl != nil {
		return rl, nil
	}

	der, err := s.download(ctx, url)
	if err != nil {
		return nil, err
	}
	rl, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, fmt.Errorf("parse CRL: %w", err)
	}
	if err := rl.CheckSignatureFrom(issuer); err != nil {
		return nil, fmt.Errorf("CRL not signed by issuer: %w", err)
	}
	if !rl.NextUpdate.IsZero() && now.After(rl.NextUpdate) {
		return nil, fmt.Errorf("stale CRL (next update %s)", rl.NextUpdate.Format(time.RFC3339))
	}

	s.crls.put(url, rl)
	return rl, nil
}

func (s *TrustStore) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CRL server returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCRLSize))
}

func onList(rl *x509.RevocationList, cert *x509.Certificate) bool {
	for _, entry := range rl.RevokedCertificateEntries {
		if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return true
		}
	}
	return false
}
