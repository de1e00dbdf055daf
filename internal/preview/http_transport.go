package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"

	"github.com/iliyamo/checkout-credits/internal/clients"
	"github.com/iliyamo/checkout-credits/internal/model"
)

const maxErrorBody = 64 << 10

// HTTPConfig configures HTTPTransport.
type HTTPConfig struct {
	BaseURL     string        // e.g. https://api.example.com
	Timeout     time.Duration // per attempt
	Retry       clients.RetryConfig
	BearerToken string // forwarded as Authorization when set
	HTTPClient  *http.Client
}

// HTTPTransport calls POST {BaseURL}/v1/pricing/preview.  A 422 with a
// {"detail": "..."} body is a floor violation; any other non-2xx status is
// a transport error.
type HTTPTransport struct {
	endpoint string
	token    string
	hc       *http.Client
	executor failsafe.Executor[*http.Response]
}

func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/v1/pricing/preview",
		token:    cfg.BearerToken,
		hc:       hc,
		executor: clients.NewHTTPExecutor(cfg.Retry),
	}
}

func (t *HTTPTransport) Preview(ctx context.Context, req Request) (model.PricingPreviewResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.PricingPreviewResponse{}, &TransportError{Err: err}
	}
	requestID := uuid.NewString()

	resp, err := clients.Do(ctx, t.executor, t.hc, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json")
		r.Header.Set("X-Request-ID", requestID)
		if t.token != "" {
			r.Header.Set("Authorization", "Bearer "+t.token)
		}
		return r, nil
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return model.PricingPreviewResponse{}, &TransportError{Status: status, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var payload struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&payload); err != nil || payload.Detail == "" {
			payload.Detail = "minimum price not met"
		}
		return model.PricingPreviewResponse{}, &FloorViolationError{Detail: payload.Detail}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return model.PricingPreviewResponse{}, &TransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var out model.PricingPreviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty response body")
		}
		return model.PricingPreviewResponse{}, &TransportError{Status: resp.StatusCode, Err: err}
	}
	return out, nil
}
