package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR extracts text from PDFs and images using the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR creates a MistralOCR extractor. If model is empty, the default is used.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// Extract sends the document inline as a data URL.
func (m *MistralOCR) Extract(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	mt := normalizeMIME(mimeType)
	dataURL := "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)

	doc := mistralOCRDocument{}
	switch {
	case mt == MIMEPDF:
		doc.Type, doc.DocumentURL = "document_url", dataURL
	case isImage(mt):
		doc.Type, doc.ImageURL = "image_url", dataURL
	default:
		return nil, eris.Wrapf(ErrUnsupportedType, "ocr: mistral cannot read %q", mt)
	}

	bodyBytes, err := json.Marshal(mistralOCRRequest{Model: m.model, Document: doc})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.FromStatus(
			eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	var ocrResp mistralOCRResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal mistral response")
	}

	parts := make([]string, 0, len(ocrResp.Pages))
	for _, page := range ocrResp.Pages {
		if strings.TrimSpace(page.Markdown) != "" {
			parts = append(parts, page.Markdown)
		}
	}
	return &Result{Text: strings.Join(parts, "\n\n"), Pages: len(ocrResp.Pages)}, nil
}
