// Package llm wraps the chat completion providers used for column mapping,
// role deduction, document labeling and contact matching. Every caller has a
// deterministic fallback, so errors here are always recoverable.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/config"
	"github.com/kairo-crm/intake/internal/resilience"
	"github.com/kairo-crm/intake/pkg/anthropic"
)

// Request is a single-turn completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
	// Temperature overrides the provider default when set.
	Temperature *float64
	// JSON asks the provider for a JSON object response when it supports it.
	JSON bool
}

// Completer produces a text completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = eris.New("llm: empty response")

const defaultMaxTokens = 1000

// New builds the configured provider wrapped in a Guarded client. It returns
// nil when no provider or key is configured; callers then use heuristics.
func New(cfg config.LLMConfig, breakers *resilience.ServiceBreakers) (Completer, error) {
	if cfg.Provider == "" || cfg.Key == "" {
		zap.L().Info("llm: no provider configured, using heuristics only")
		return nil, nil
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	hc := &http.Client{Timeout: timeout + 5*time.Second}

	var inner Completer
	switch cfg.Provider {
	case "anthropic":
		client := anthropic.NewClient(cfg.Key,
			anthropic.WithBaseURL(cfg.BaseURL),
			anthropic.WithHTTPClient(hc),
			anthropic.WithMaxRetries(0),
		)
		inner = NewAnthropic(client, cfg.Model, cfg.Temperature)
	case "openai":
		inner = NewOpenAI(OpenAIConfig{
			APIKey:      cfg.Key,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			HTTPClient:  hc,
		})
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}

	var breaker *resilience.CircuitBreaker
	if breakers != nil {
		breaker = breakers.Get("llm")
	} else {
		breaker = resilience.NewCircuitBreaker(resilience.FromCircuitConfig(cfg.BreakerThreshold, cfg.BreakerResetSecs))
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	retry.OnRetry = resilience.RetryLogger(cfg.Provider, "complete")

	return NewGuarded(inner, timeout, retry, breaker), nil
}

// Guarded bounds every call with a timeout, retries transient failures and
// short-circuits while the provider keeps failing.
type Guarded struct {
	inner   Completer
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps inner. A zero timeout disables the per-attempt deadline.
func NewGuarded(inner Completer, timeout time.Duration, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Guarded {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &Guarded{inner: inner, timeout: timeout, retry: retry, breaker: breaker}
}

// Complete implements Completer.
func (g *Guarded) Complete(ctx context.Context, req Request) (string, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	out, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (string, error) {
			if g.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}
			return g.inner.Complete(ctx, req)
		})
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: complete")
	}
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
