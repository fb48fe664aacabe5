package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/config"
	"github.com/kairo-crm/intake/internal/resilience"
)

func TestNewExtractor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.OCRConfig
		want    any
		wantErr string
	}{
		{name: "local", cfg: config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"}, want: &PdfToText{}},
		{name: "default", cfg: config.OCRConfig{}, want: &PdfToText{}},
		{name: "mistral", cfg: config.OCRConfig{Provider: "mistral", MistralKey: "k"}, want: &MistralOCR{}},
		{name: "mistral without key", cfg: config.OCRConfig{Provider: "mistral"}, wantErr: "requires ocr.mistral_key"},
		{name: "unknown", cfg: config.OCRConfig{Provider: "tesseract"}, wantErr: `unknown provider "tesseract"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := NewExtractor(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, ext)
		})
	}
}

func TestNewExtractor_MistralOverrides(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "mistral", MistralKey: "k", MistralURL: "http://ocr.local/v1/ocr"})
	require.NoError(t, err)
	m := ext.(*MistralOCR)
	assert.Equal(t, "http://ocr.local/v1/ocr", m.endpoint)
	assert.Equal(t, defaultMistralModel, m.model)
}

func TestSplitPages(t *testing.T) {
	res := splitPages("Contrato de arras\n\fFirma\n\f   \n\f")
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, "=== Página 1 ===\nContrato de arras\n\n=== Página 2 ===\nFirma", res.Text)

	res = splitPages("")
	assert.Equal(t, 1, res.Pages)
	assert.Empty(t, res.Text)
}

func fakePdfToText(t *testing.T, script string) *PdfToText {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "pdftotext")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	p := NewPdfToText(bin)
	p.tempDir = dir
	return p
}

func TestPdfToText_Extract(t *testing.T) {
	// The fake echoes the input file to prove the PDF bytes reached it.
	p := fakePdfToText(t, "#!/bin/sh\ncat \"$2\"\nprintf '\\fpage two\\f'\n")

	res, err := p.Extract(context.Background(), []byte("page one"), "application/pdf; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "=== Página 1 ===\npage one\n\n=== Página 2 ===\npage two", res.Text)
}

func TestPdfToText_Failure(t *testing.T) {
	p := fakePdfToText(t, "#!/bin/sh\necho 'Syntax Error: broken xref' >&2\nexit 1\n")

	_, err := p.Extract(context.Background(), []byte("%PDF"), MIMEPDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
	assert.Contains(t, err.Error(), "broken xref")
}

func TestPdfToText_RejectsImages(t *testing.T) {
	_, err := NewPdfToText("").Extract(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg")
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func mistralServer(t *testing.T, check func(req mistralOCRRequest), status int, body any) *MistralOCR {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(req)
		}
		w.WriteHeader(status)
		if s, ok := body.(string); ok {
			_, _ = w.Write([]byte(s))
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	m := NewMistralOCR("test-key", "test-model")
	m.endpoint = srv.URL
	return m
}

func TestMistralOCR_PDF(t *testing.T) {
	m := mistralServer(t, func(req mistralOCRRequest) {
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")
	}, http.StatusOK, mistralOCRResponse{Pages: []mistralOCRPage{
		{Index: 0, Markdown: "Page one content"},
		{Index: 1, Markdown: "  "},
		{Index: 2, Markdown: "Page three content"},
	}})

	res, err := m.Extract(context.Background(), []byte("%PDF-1.4"), MIMEPDF)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, "Page one content\n\nPage three content", res.Text)
}

func TestMistralOCR_Image(t *testing.T) {
	m := mistralServer(t, func(req mistralOCRRequest) {
		assert.Equal(t, "image_url", req.Document.Type)
		assert.Contains(t, req.Document.ImageURL, "data:image/png;base64,")
		assert.Empty(t, req.Document.DocumentURL)
	}, http.StatusOK, mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "DNI 12345678Z"}}})

	res, err := m.Extract(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "IMAGE/PNG")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, "DNI 12345678Z", res.Text)
}

func TestMistralOCR_Errors(t *testing.T) {
	t.Run("unauthorized is permanent", func(t *testing.T) {
		m := mistralServer(t, nil, http.StatusUnauthorized, `{"error":"invalid api key"}`)
		_, err := m.Extract(context.Background(), []byte("%PDF"), MIMEPDF)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mistral API returned 401")
		assert.False(t, resilience.IsTransient(err))
	})

	t.Run("overloaded is transient", func(t *testing.T) {
		m := mistralServer(t, nil, http.StatusServiceUnavailable, `busy`)
		_, err := m.Extract(context.Background(), []byte("%PDF"), MIMEPDF)
		require.Error(t, err)
		assert.True(t, resilience.IsTransient(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		m := mistralServer(t, nil, http.StatusOK, `{invalid json`)
		_, err := m.Extract(context.Background(), []byte("%PDF"), MIMEPDF)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unmarshal mistral response")
	})

	t.Run("unsupported type", func(t *testing.T) {
		m := NewMistralOCR("test-key", "")
		_, err := m.Extract(context.Background(), []byte("hi"), "text/plain")
		assert.True(t, errors.Is(err, ErrUnsupportedType))
	})
}
