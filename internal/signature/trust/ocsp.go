package trust

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// maxOCSPResponse caps the body read from a responder
const maxOCSPResponse = 1 << 20

// CheckOCSP asks each OCSP responder named by cert until one gives a
// definite answer. A nil client uses http.DefaultClient.
func CheckOCSP(ctx context.Context, client *http.Client, cert, issuer *x509.Certificate) (revoked bool, err error) {
	if len(cert.OCSPServer) == 0 {
		return false, errors.New("no OCSP responder in certificate")
	}
	if client == nil {
		client = http.DefaultClient
	}

	der, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return false, fmt.Errorf("build OCSP request: %w", err)
	}

	var errs []error
	for _, url := range cert.OCSPServer {
		var resp *ocsp.Response
		body, err := postOCSP(ctx, client, url, der)
		if err == nil {
			resp, err = parseOCSP(body, cert, issuer)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		return resp.Status == ocsp.Revoked, nil
	}
	return false, fmt.Errorf("no OCSP responder answered: %w", errors.Join(errs...))
}

func postOCSP(ctx context.Context, client *http.Client, url string, der []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(der))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("responder returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxOCSPResponse))
}

// parseOCSP accepts only fresh Good or Revoked answers
func parseOCSP(body []byte, cert, issuer *x509.Certificate) (*ocsp.Response, error) {
	resp, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return nil, fmt.Errorf("parse OCSP response: %w", err)
	}
	if !resp.NextUpdate.IsZero() && time.Now().After(resp.NextUpdate) {
		return nil, fmt.Errorf("stale OCSP response (next update %s)", resp.NextUpdate.Format(time.RFC3339))
	}
	switch resp.Status {
	case ocsp.Good, ocsp.Revoked:
		return resp, nil
	case ocsp.Unknown:
		return nil, errors.New("responder does not know the certificate")
	default:
		return nil, fmt.Errorf("unexpected OCSP status %d", resp.Status)
	}
}
