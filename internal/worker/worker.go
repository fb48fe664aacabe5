// Package worker holds the queue handlers run by the pollers: document OCR,
// document labeling and contact import. Each handler receives a leased job
// and either finishes it through a lease-guarded write or returns an error
// for the poller to settle.
package worker

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/resilience"
)

// Business failures recorded on jobs. Their text is shown to users.
var (
	ErrEmptyFile       = eris.New("CSV file is empty or could not be parsed")
	ErrRequiredColumns = eris.New("Could not map required fields (first_name, last_name). Please check your CSV has name columns.")
	ErrEmptyOCR        = eris.New("OCR returned empty text")
)

const msgDownload = "Failed to download file from storage"

// FileSource downloads uploaded files.
type FileSource interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// download fetches rawURL. Transient failures keep their classification so
// the job is retried; anything else is a download failure.
func download(ctx context.Context, files FileSource, rawURL string) ([]byte, error) {
	data, err := files.Fetch(ctx, rawURL)
	if err == nil {
		return data, nil
	}
	if resilience.IsTransient(err) {
		return nil, eris.Wrap(err, "worker: download")
	}
	return nil, eris.Wrap(err, msgDownload)
}
