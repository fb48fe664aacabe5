// Package ocr turns uploaded documents into text.
package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/config"
)

// MIMEPDF is the content type of PDF documents.
const MIMEPDF = "application/pdf"

// ErrUnsupportedType means the extractor cannot read the document's type.
var ErrUnsupportedType = eris.New("ocr: unsupported document type")

// Result is the text extracted from one document.
type Result struct {
	Text  string
	Pages int
}

// Extractor extracts text from a document's bytes.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (*Result, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		m := NewMistralOCR(cfg.MistralKey, cfg.MistralModel)
		if cfg.MistralURL != "" {
			m.endpoint = cfg.MistralURL
		}
		return m, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// normalizeMIME lower-cases a content type and drops parameters.
func normalizeMIME(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
