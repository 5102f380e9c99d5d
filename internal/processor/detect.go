package processor

import (
	"bytes"
	"net/http"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat detects the input format from magic bytes
func DetectFormat(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return FormatPDF
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return FormatImage
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return FormatImage
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return FormatImage
	case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatImage
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return FormatXML
	}
	return FormatUnknown
}

// DetectMimeType returns the MIME type sniffed from data
func DetectMimeType(data []byte) string {
	switch DetectFormat(data) {
	case FormatXML:
		return "application/xml"
	case FormatPDF:
		return "application/pdf"
	case FormatImage:
		if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
			return "image/tiff"
		}
	}
	return http.DetectContentType(data)
}
