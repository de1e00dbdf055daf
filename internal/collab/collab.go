// Package collab talks to the services around checkout: the wallet that
// reports a student's credit balance and the booking record that owns the
// order summary.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"

	"github.com/iliyamo/checkout-credits/internal/clients"
)

// Config configures one collaborator client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Retry       clients.RetryConfig
	BearerToken string
	HTTPClient  *http.Client
}

// StatusError is a non-2xx answer from a collaborator.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Status, e.Body)
}

type base struct {
	service  string
	baseURL  string
	token    string
	hc       *http.Client
	executor failsafe.Executor[*http.Response]
}

func newBase(service string, cfg Config) base {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return base{
		service:  service,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.BearerToken,
		hc:       hc,
		executor: clients.NewHTTPExecutor(cfg.Retry),
	}
}

// getJSON issues GET baseURL+path and decodes a 2xx body into out.
func (b base) getJSON(ctx context.Context, path string, out any) error {
	requestID := uuid.NewString()
	resp, err := clients.Do(ctx, b.executor, b.hc, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "application/json")
		r.Header.Set("X-Request-ID", requestID)
		if b.token != "" {
			r.Header.Set("Authorization", "Bearer "+b.token)
		}
		return r, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", b.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Service: b.service, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", b.service, err)
	}
	return nil
}
