// Package fetcher downloads uploaded files from the file store and parses
// contact spreadsheets into headers and rows.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/config"
)

var (
	// ErrNotFound means the file store has no object at the URL.
	ErrNotFound = eris.New("fetcher: file not found")
	// ErrTooLarge means the object exceeds the configured size limit.
	ErrTooLarge = eris.New("fetcher: file exceeds size limit")
)

// Downloader streams one object. The caller closes the reader.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Options configures a FileStore.
type Options struct {
	Timeout     time.Duration
	MaxFileSize int64
	RatePerSec  float64
	UserAgent   string
	HTTPClient  *http.Client
}

// OptionsFromConfig converts the fetch config section.
func OptionsFromConfig(cfg config.FetchConfig) Options {
	return Options{
		Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxFileSize: int64(cfg.MaxFileSizeMB) << 20,
		RatePerSec:  cfg.RatePerSec,
	}
}

// FileStore resolves file URLs by scheme: http and https go through the
// rate-limited HTTP client, ftp through an FTP session, file and bare paths
// through the local filesystem.
type FileStore struct {
	http    Downloader
	ftp     Downloader
	local   Downloader
	maxSize int64
}

// NewFileStore creates a FileStore.
func NewFileStore(opts Options) *FileStore {
	return &FileStore{
		http:    NewHTTPFetcher(opts),
		ftp:     NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
		local:   LocalFetcher{},
		maxSize: opts.MaxFileSize,
	}
}

// Fetch downloads the whole object at rawURL.
func (s *FileStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	d, err := s.route(rawURL)
	if err != nil {
		return nil, err
	}
	body, err := d.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	r := io.Reader(body)
	if s.maxSize > 0 {
		r = io.LimitReader(body, s.maxSize+1)
	}
	var buf bytes.Buffer
	n, err := buf.ReadFrom(r)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", redact(rawURL))
	}
	if s.maxSize > 0 && n > s.maxSize {
		return nil, eris.Wrapf(ErrTooLarge, "fetcher: %s larger than %d bytes", redact(rawURL), s.maxSize)
	}
	zap.L().Debug("fetcher: downloaded", zap.String("url", redact(rawURL)), zap.Int64("bytes", n))
	return buf.Bytes(), nil
}

func (s *FileStore) route(rawURL string) (Downloader, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return s.http, nil
	case "ftp":
		return s.ftp, nil
	case "file", "":
		return s.local, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// redact drops credentials and query strings (signed URLs) before logging.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
