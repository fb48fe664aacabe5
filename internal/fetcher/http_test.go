package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/config"
)

func fastStore(maxSize int64) *FileStore {
	s := NewFileStore(Options{Timeout: 5 * time.Second, MaxFileSize: maxSize, UserAgent: "test-agent"})
	h := s.http.(*HTTPFetcher)
	h.retry.InitialBackoff = time.Millisecond
	h.retry.MaxBackoff = 5 * time.Millisecond
	return s
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("first,last\n"))
	}))
	defer srv.Close()

	data, err := fastStore(0).Fetch(context.Background(), srv.URL+"/imports/a.csv?token=abc")
	require.NoError(t, err)
	assert.Equal(t, "first,last\n", string(data))
}

func TestFetch_HTTPNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := fastStore(0).Fetch(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), calls.Load(), "404 is not retried")
}

func TestFetch_HTTPRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	data, err := fastStore(0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_HTTPForbiddenNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := fastStore(0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	_, err := fastStore(32).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge))

	data, err := fastStore(64).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestFetch_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte("first,last\n"), 0o644))

	s := fastStore(0)
	data, err := s.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "first,last\n", string(data))

	data, err = s.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "first,last\n", string(data))

	_, err = s.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	_, err := fastStore(0).Fetch(context.Background(), "s3://bucket/key.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://store.example.com/a.csv", redact("https://user:pw@store.example.com/a.csv?sig=123"))
	assert.Equal(t, "<invalid url>", redact("://bad"))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.FetchConfig{TimeoutSecs: 120, MaxFileSizeMB: 50, RatePerSec: 5})
	assert.Equal(t, 120*time.Second, opts.Timeout)
	assert.Equal(t, int64(50<<20), opts.MaxFileSize)
	assert.Equal(t, 5.0, opts.RatePerSec)
}
