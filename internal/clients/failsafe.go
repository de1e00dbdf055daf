// Package clients holds the retry plumbing shared by the outbound HTTP
// clients (pricing preview, wallet, booking record).
package clients

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ShouldRetry retries network errors, server errors (5xx) and rate limits
// (429).  Cancellation and client errors such as a 422 floor violation are
// final.
func ShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// RetryConfig configures the HTTP retry policy.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig keeps retries short: a negotiation that takes too long
// is usually superseded by newer input anyway.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 1,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

func normalize(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return cfg
}

// NewHTTPExecutor builds a failsafe executor with a jittered backoff retry
// policy.
//
//nolint:bodyclose // *http.Response is a type parameter here, not a live response
func NewHTTPExecutor(cfg RetryConfig) failsafe.Executor[*http.Response] {
	cfg = normalize(cfg)
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(ShouldRetry).
		Build()
	return failsafe.With[*http.Response](policy)
}

// Do runs one request through executor, closing the body of every response
// that will be retried.  build is called per attempt so request bodies are
// fresh.
func Do(ctx context.Context, executor failsafe.Executor[*http.Response], hc *http.Client, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := hc.Do(req)
		if ShouldRetry(resp, err) && resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return resp, err
	})
}
