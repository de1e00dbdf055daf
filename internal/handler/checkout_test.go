package handler

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/checkout-credits/internal/checkout"
	"github.com/iliyamo/checkout-credits/internal/collab"
	"github.com/iliyamo/checkout-credits/internal/service"
)

func newTestContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestWriteErrorStatus(t *testing.T) {
	h := &CheckoutHandler{Log: logrus.New()}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"session not found", service.ErrSessionNotFound, http.StatusNotFound},
		{"not initialized", checkout.ErrNotInitialized, http.StatusNotFound},
		{"closed", checkout.ErrClosed, http.StatusGone},
		{"missing booking", checkout.ErrMissingBookingID, http.StatusBadRequest},
		{"empty promo", checkout.ErrEmptyPromoCode, http.StatusBadRequest},
		{"promo blocked", checkout.ErrPromoBlocked, http.StatusConflict},
		{"price pending", checkout.ErrPriceNotConfirmed, http.StatusConflict},
		{"collaborator", &collab.StatusError{Service: "wallet", Status: 503}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestContext(http.MethodGet, "/")
			if err := h.writeError(c, tt.err); err != nil {
				t.Fatalf("writeError: %v", err)
			}
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWriteErrorLogsUnexpectedThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.Out = &buf
	log.Formatter = &logrus.JSONFormatter{}
	h := &CheckoutHandler{Log: log}

	c, rec := newTestContext(http.MethodPut, "/v1/checkout/bk-1/credits")
	if err := h.writeError(c, errors.New("redis: connection refused")); err != nil {
		t.Fatalf("writeError: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("internal error leaked to client: %s", rec.Body.String())
	}
	out := buf.String()
	if !strings.Contains(out, `"error":"redis: connection refused"`) || !strings.Contains(out, `"method":"PUT"`) {
		t.Fatalf("log output = %q", out)
	}
}
