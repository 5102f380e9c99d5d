package xml

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/nfe-entry/internal/signature"
)

// XMLDSigNamespace is the namespace of <Signature>
const XMLDSigNamespace = "http://www.w3.org/2000/09/xmldsig#"

// Kinds of SEFAZ signed elements
const (
	KindNFe          = "NFe"
	KindEvent        = "evento"
	KindInutilizacao = "inutilizacao"
	KindUnknown      = "unknown"
)

// SignatureExtractor locates the XMLDSig signature of an NF-e document and
// the element it signs
type SignatureExtractor struct{}

// NewSignatureExtractor creates a new signature extractor
func NewSignatureExtractor() *SignatureExtractor {
	return &SignatureExtractor{}
}

// ExtractionResult contains the extracted signature and related elements
type ExtractionResult struct {
	// SignatureElement is the <Signature> element
	SignatureElement *etree.Element
	// SignedElement is the element named by the Reference URI (infNFe,
	// infEvento, ...). In NF-e it is a sibling of the signature.
	SignedElement *etree.Element
	// ReferenceURI is the raw URI, e.g. "#NFe3524..."
	ReferenceURI string
	Document     *etree.Document
	Kind         string
}

// Extract finds the first signature whose reference resolves inside data.
// nfeProc documents carry the NF-e signature and sometimes a protocol
// signature; the NF-e one comes first in document order.
func (e *SignatureExtractor) Extract(data []byte) (*ExtractionResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, signature.NewSignatureError(signature.ErrCodeUnsupportedFormat, "xml", "failed to parse XML", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, signature.ErrUnsupportedFormat("empty XML document")
	}

	sigs := findElements(root, "Signature")
	if len(sigs) == 0 {
		return nil, signature.ErrNoSignature()
	}

	var firstURI string
	for i, sig := range sigs {
		uri := referenceURI(sig)
		if i == 0 {
			firstURI = uri
		}
		signed := resolveReference(root, sig, uri)
		if signed == nil {
			continue
		}
		return &ExtractionResult{
			SignatureElement: sig,
			SignedElement:    signed,
			ReferenceURI:     uri,
			Document:         doc,
			Kind:             kindOf(signed),
		}, nil
	}
	return nil, signature.ErrReferenceMismatch(firstURI)
}

// CanExtract returns true if data looks like signed NF-e XML
func (e *SignatureExtractor) CanExtract(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("<")) {
		return false
	}
	return bytes.Contains(data, []byte("Signature")) && bytes.Contains(data, []byte(XMLDSigNamespace))
}

func referenceURI(sig *etree.Element) string {
	signedInfo := childByTag(sig, "SignedInfo")
	if signedInfo == nil {
		return ""
	}
	ref := childByTag(signedInfo, "Reference")
	if ref == nil {
		return ""
	}
	return ref.SelectAttrValue("URI", "")
}

// resolveReference returns the element whose Id matches uri. An empty URI
// signs the whole document, i.e. the signature's parent.
func resolveReference(root, sig *etree.Element, uri string) *etree.Element {
	if uri == "" {
		if parent := sig.Parent(); parent != nil && parent.Tag != "" {
			return parent
		}
		return root
	}
	if !strings.HasPrefix(uri, "#") {
		return nil
	}
	id := uri[1:]
	return findElementByID(root, id)
}

func findElementByID(el *etree.Element, id string) *etree.Element {
	for _, attr := range []string{"Id", "ID", "id"} {
		if el.SelectAttrValue(attr, "") == id {
			return el
		}
	}
	for _, child := range el.ChildElements() {
		if found := findElementByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// findElements returns every element with the given local name in document order
func findElements(el *etree.Element, localName string) []*etree.Element {
	var out []*etree.Element
	if el.Tag == localName {
		out = append(out, el)
	}
	for _, child := range el.ChildElements() {
		out = append(out, findElements(child, localName)...)
	}
	return out
}

func childByTag(el *etree.Element, localName string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == localName {
			return child
		}
	}
	return nil
}

func kindOf(el *etree.Element) string {
	switch el.Tag {
	case "infNFe":
		return KindNFe
	case "infEvento":
		return KindEvent
	case "infInut":
		return KindInutilizacao
	default:
		return KindUnknown
	}
}

// ExtractCertificateData returns the base64 signing certificate and any
// further certificates of KeyInfo/X509Data
func ExtractCertificateData(sig *etree.Element) ([][]byte, error) {
	keyInfo := childByTag(sig, "KeyInfo")
	if keyInfo == nil {
		return nil, fmt.Errorf("no KeyInfo in Signature")
	}

	var certs [][]byte
	for _, x509Data := range keyInfo.ChildElements() {
		if x509Data.Tag != "X509Data" {
			continue
		}
		for _, c := range x509Data.ChildElements() {
			if c.Tag == "X509Certificate" {
				if text := strings.TrimSpace(c.Text()); text != "" {
					certs = append(certs, []byte(text))
				}
			}
		}
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no X509Certificate found in Signature")
	}
	return certs, nil
}
