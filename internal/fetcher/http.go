package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/kairo-crm/intake/internal/resilience"
)

// HTTPFetcher downloads file store objects over HTTP with a shared rate
// limit and retries on transient failures.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	retry     resilience.RetryConfig
}

// NewHTTPFetcher creates an HTTPFetcher. A zero RatePerSec disables the limit.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "intake-worker/1.0"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		burst = max(1, int(opts.RatePerSec))
	}
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Second
	retry.OnRetry = resilience.RetryLogger("file_store", "download")
	return &HTTPFetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: opts.UserAgent,
		retry:     retry,
	}
}

// Download GETs rawURL. A 404 maps to ErrNotFound; 429 and 5xx are retried.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (io.ReadCloser, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: http download")
	}
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "get %s", redact(rawURL))
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, eris.Wrapf(ErrNotFound, "http 404 from %s", redact(rawURL))
	default:
		_ = resp.Body.Close()
		return nil, resilience.FromStatus(
			eris.Errorf("http %d from %s", resp.StatusCode, redact(rawURL)),
			resp.StatusCode,
		)
	}
}
