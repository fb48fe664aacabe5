package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts embedded text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
	tempDir string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Extract writes the PDF to a temp file and runs pdftotext -layout on it.
// pdftotext ends every page with a form feed, which gives the page count.
func (p *PdfToText) Extract(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	if mt := normalizeMIME(mimeType); mt != MIMEPDF {
		return nil, eris.Wrapf(ErrUnsupportedType, "ocr: pdftotext cannot read %q", mt)
	}

	tmp, err := os.CreateTemp(p.tempDir, "intake-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, eris.Wrap(err, "ocr: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "ocr: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", tmp.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftotext failed: %s", strings.TrimSpace(stderr.String()))
	}

	return splitPages(stdout.String()), nil
}

// splitPages labels each non-blank page and counts every page.
func splitPages(out string) *Result {
	pages := strings.Split(out, "\f")
	// Output ends with a form feed, leaving an empty tail.
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}

	var sections []string
	for i, page := range pages {
		page = strings.TrimRight(page, " \n\t")
		if strings.TrimSpace(page) == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("=== Página %d ===\n%s", i+1, page))
	}
	return &Result{Text: strings.Join(sections, "\n\n"), Pages: len(pages)}
}
