package fetcher

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"

	"github.com/rotisserie/eris"
)

// LocalFetcher reads file:// URLs and bare paths.
type LocalFetcher struct{}

// Download opens the file.
func (LocalFetcher) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "fetcher: %s", path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open local file")
	}
	return f, nil
}
