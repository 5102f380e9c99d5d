package xml

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/rezonia/nfe-entry/internal/signature"
	"github.com/rezonia/nfe-entry/internal/signature/trust"
)

const (
	nfeNamespace = "http://www.portalfiscal.inf.br/nfe"
	testKey      = "35240612345678000190550010000001231000001234"
	testCNPJ     = "12345678000190"
)

type testPKI struct {
	root    *x509.Certificate
	rootKey *rsa.PrivateKey
	leaf    *x509.Certificate
	leafKey *rsa.PrivateKey
}

// GetKeyPair implements dsig.X509KeyStore
func (p *testPKI) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	return p.leafKey, p.leaf.Raw, nil
}

func newTestPKI(t *testing.T, cn string, notBefore, notAfter time.Time) *testPKI {
	t.Helper()

	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "AC TESTE RFB", Organization: []string{"ICP-Brasil"}},
		NotBefore:             notBefore.Add(-time.Hour),
		NotAfter:              notAfter.Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatal(err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"ICP-Brasil"}},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, root, &leafKey.PublicKey, rootKey)
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatal(err)
	}

	return &testPKI{root: root, rootKey: rootKey, leaf: leaf, leafKey: leafKey}
}

// signedNFe builds <NFe><infNFe/><Signature/></NFe> signed the way SEFAZ
// documents are: enveloped transform + C14N over infNFe, signature as sibling.
func signedNFe(t *testing.T, pki *testPKI, emitCNPJ string, issuedAt time.Time) []byte {
	t.Helper()

	inf := etree.NewElement("infNFe")
	inf.CreateAttr("xmlns", nfeNamespace)
	inf.CreateAttr("Id", "NFe"+testKey)
	inf.CreateAttr("versao", "4.00")
	ide := inf.CreateElement("ide")
	ide.CreateElement("nNF").SetText("123")
	ide.CreateElement("dhEmi").SetText(issuedAt.Format(time.RFC3339))
	emit := inf.CreateElement("emit")
	emit.CreateElement("CNPJ").SetText(emitCNPJ)
	emit.CreateElement("xNome").SetText("DISTRIBUIDORA EXEMPLO LTDA")
	total := inf.CreateElement("total").CreateElement("ICMSTot")
	total.CreateElement("vProd").SetText("100.00")

	ctx := dsig.NewDefaultSigningContext(pki)
	ctx.IdAttribute = "Id"
	ctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()

	signed, err := ctx.SignEnveloped(inf)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig := signed.SelectElement("Signature")
	if sig == nil {
		t.Fatal("signature element missing after signing")
	}
	signed.RemoveChild(sig)

	nfe := etree.NewElement("NFe")
	nfe.CreateAttr("xmlns", nfeNamespace)
	nfe.AddChild(signed)
	nfe.AddChild(sig)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(nfe)
	data, err := doc.WriteToBytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newVerifier(t *testing.T, trusted ...*x509.Certificate) *NFeVerifier {
	t.Helper()
	ts, err := trust.NewTrustStore()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range trusted {
		ts.AddCertificate(c)
	}
	return NewNFeVerifier(ts)
}

func TestNFeVerifier_Valid(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-time.Hour))

	v := newVerifier(t, pki.root)
	result, err := v.Verify(context.Background(), data)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if !result.Valid {
		t.Fatalf("expected valid signature, errors: %v", result.Errors)
	}
	if !result.SignatureFound || !result.SignatureValid || !result.CertChainValid || !result.NotRevoked {
		t.Errorf("checks: %+v", result)
	}
	if result.AccessKey != testKey {
		t.Errorf("AccessKey: got %q", result.AccessKey)
	}
	if result.IssuerDocument != testCNPJ {
		t.Errorf("IssuerDocument: got %q", result.IssuerDocument)
	}
	if result.Signer == nil || result.Signer.Document != testCNPJ || result.Signer.Name != "DISTRIBUIDORA EXEMPLO LTDA" {
		t.Errorf("Signer: got %+v", result.Signer)
	}
	if result.SignedAt == nil {
		t.Error("SignedAt: got nil")
	}
	if len(result.CertChain) != 2 {
		t.Errorf("CertChain: got %d certificates", len(result.CertChain))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
	if result.Format != signature.FormatNFe {
		t.Errorf("Format: got %s", result.Format)
	}
}

func TestNFeVerifier_InheritedNamespace(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-time.Hour))

	// infNFe usually inherits the default namespace from <NFe>
	stripped := strings.Replace(string(data), `<infNFe xmlns="`+nfeNamespace+`" `, `<infNFe `, 1)
	if stripped == string(data) {
		t.Fatal("namespace declaration not found in fixture")
	}

	result, err := newVerifier(t, pki.root).Verify(context.Background(), []byte(stripped))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.SignatureValid {
		t.Errorf("expected signature valid, errors: %v", result.Errors)
	}
}

func TestNFeVerifier_NFeProc(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	data := string(signedNFe(t, pki, testCNPJ, now.Add(-time.Hour)))

	body := data[strings.Index(data, "<NFe"):]
	proc := `<?xml version="1.0" encoding="UTF-8"?><nfeProc xmlns="` + nfeNamespace + `" versao="4.00">` + body +
		`<protNFe versao="4.00"><infProt><chNFe>` + testKey + `</chNFe><cStat>100</cStat></infProt></protNFe></nfeProc>`

	result, err := newVerifier(t, pki.root).Verify(context.Background(), []byte(proc))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid, errors: %v", result.Errors)
	}
}

func TestNFeVerifier_Tampered(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-time.Hour))
	tampered := strings.Replace(string(data), "<vProd>100.00</vProd>", "<vProd>900.00</vProd>", 1)

	result, err := newVerifier(t, pki.root).Verify(context.Background(), []byte(tampered))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid || result.SignatureValid {
		t.Error("tampered document must not validate")
	}
	if !result.SignatureFound {
		t.Error("SignatureFound: got false")
	}
	if !result.CertChainValid {
		t.Errorf("chain should still validate, errors: %v", result.Errors)
	}
}

func TestNFeVerifier_UntrustedRoot(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-time.Hour))

	result, err := newVerifier(t).Verify(context.Background(), data)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.SignatureValid {
		t.Errorf("signature math should validate, errors: %v", result.Errors)
	}
	if result.CertChainValid || result.Valid {
		t.Error("chain against empty trust store must fail")
	}
	if !containsCode(result.Errors, signature.ErrCodeChainInvalid) {
		t.Errorf("expected %s in %v", signature.ErrCodeChainInvalid, result.Errors)
	}
}

func TestNFeVerifier_IssuedAfterExpiry(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-time.Hour))

	result, err := newVerifier(t, pki.root).Verify(context.Background(), data)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Error("document issued after certificate expiry must not validate")
	}
	if !containsCode(result.Errors, signature.ErrCodeCertExpired) {
		t.Errorf("expected %s in %v", signature.ErrCodeCertExpired, result.Errors)
	}
}

func TestNFeVerifier_IssuedBeforeExpiry(t *testing.T) {
	// Issued while the certificate was valid; checked after it expired.
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-36*time.Hour))

	result, err := newVerifier(t, pki.root).Verify(context.Background(), data)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid at issue time, errors: %v", result.Errors)
	}
}

func TestNFeVerifier_SignerMismatch(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "OUTRA EMPRESA SA:99999999000100", now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-time.Hour))

	result, err := newVerifier(t, pki.root).Verify(context.Background(), data)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "does not match emitter") {
		t.Errorf("expected signer mismatch warning, got %v", result.Warnings)
	}
}

func TestNFeVerifier_NoSignature(t *testing.T) {
	v := newVerifier(t)
	result, err := v.Verify(context.Background(), []byte(`<NFe><infNFe Id="NFe1"/></NFe>`))
	if !errors.Is(err, signature.ErrNoSignature()) {
		t.Fatalf("expected no-signature error, got %v", err)
	}
	if result.SignatureFound || result.Valid {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestNFeVerifier_ReferenceMismatch(t *testing.T) {
	now := time.Now()
	pki := newTestPKI(t, "DISTRIBUIDORA EXEMPLO LTDA:"+testCNPJ, now.Add(-24*time.Hour), now.Add(365*24*time.Hour))
	data := signedNFe(t, pki, testCNPJ, now.Add(-time.Hour))
	moved := strings.Replace(string(data), `Id="NFe`+testKey+`"`, `Id="NFe00000000000000000000000000000000000000000000"`, 1)

	_, err := newVerifier(t, pki.root).Verify(context.Background(), []byte(moved))
	var sigErr *signature.SignatureError
	if !errors.As(err, &sigErr) || sigErr.Code != signature.ErrCodeReferenceMismatch {
		t.Fatalf("expected reference mismatch, got %v", err)
	}
}

func TestNFeVerifier_CanVerifyAndFormat(t *testing.T) {
	v := newVerifier(t)
	if v.Format() != signature.FormatNFe {
		t.Errorf("Format: got %s", v.Format())
	}
	if v.CanVerify([]byte(`<NFe/>`)) {
		t.Error("unsigned XML should not be verifiable")
	}
	if !v.CanVerify([]byte(`<NFe>` + sigOpen + `</Signature></NFe>`)) {
		t.Error("signed XML should be verifiable")
	}

	var _ signature.Verifier = v
}

func containsCode(msgs []string, code string) bool {
	for _, m := range msgs {
		if strings.Contains(m, "["+code+"]") {
			return true
		}
	}
	return false
}
