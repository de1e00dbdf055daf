// Package preview negotiates authoritative prices with the pricing preview
// RPC.  One Client serves one booking draft: it keeps at most one
// negotiation in flight and fences every response against the latest
// issued request id, so a late answer to an older request is never
// delivered even when its cancellation did not land in time.
package preview

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// Request is the wire request of the preview RPC.
type Request struct {
	BookingID   string `json:"bookingId"`
	CreditMinor int64  `json:"creditMinor"`
	Modality    string `json:"modality,omitempty"`
	PromoCode   string `json:"promoCode,omitempty"`
}

// Transport performs one preview call.  It returns *FloorViolationError for
// floor rejections and *TransportError for anything else that failed.
type Transport interface {
	Preview(ctx context.Context, req Request) (model.PricingPreviewResponse, error)
}

// Client issues fenced, cancelable negotiations.
type Client struct {
	transport Transport
	log       logrus.FieldLogger

	latest atomic.Uint64

	mu       sync.Mutex
	inflight uint64
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewClient wraps transport.  A nil logger discards output.
func NewClient(transport Transport, log logrus.FieldLogger) *Client {
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	return &Client{transport: transport, log: log}
}

// Begin issues a new request id for the given amount and cancels whatever
// negotiation was in flight.  The returned request must be passed to Do.
func (c *Client) Begin(parent context.Context, bookingID string, creditMinor int64, modality, promoCode string) model.NegotiationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	id := c.latest.Add(1)
	ctx, cancel := context.WithCancel(parent)
	c.inflight, c.ctx, c.cancel = id, ctx, cancel
	return model.NegotiationRequest{
		RequestID:            id,
		BookingID:            bookingID,
		RequestedCreditMinor: creditMinor,
		Modality:             modality,
		PromoCode:            promoCode,
		Cancel:               cancel,
	}
}

// Do runs req against the transport.  It returns ErrAborted when req is no
// longer the latest request, whatever the transport answered.
func (c *Client) Do(req model.NegotiationRequest) (model.PricingPreviewResponse, error) {
	c.mu.Lock()
	if req.RequestID != c.inflight || c.ctx == nil {
		c.mu.Unlock()
		return model.PricingPreviewResponse{}, ErrAborted
	}
	ctx := c.ctx
	c.mu.Unlock()

	resp, err := c.transport.Preview(ctx, Request{
		BookingID:   req.BookingID,
		CreditMinor: req.RequestedCreditMinor,
		Modality:    req.Modality,
		PromoCode:   req.PromoCode,
	})
	canceled := ctx.Err() != nil
	c.finish(req.RequestID)

	if !c.IsCurrent(req.RequestID) {
		c.log.WithFields(logrus.Fields{
			"booking_id": req.BookingID,
			"request_id": req.RequestID,
		}).Debug("discarding stale preview response")
		return model.PricingPreviewResponse{}, ErrAborted
	}
	if err != nil {
		return model.PricingPreviewResponse{}, classifyTransport(err, canceled)
	}
	return resp, nil
}

// Negotiate is Begin followed by Do.
func (c *Client) Negotiate(ctx context.Context, bookingID string, creditMinor int64) (model.PricingPreviewResponse, error) {
	return c.Do(c.Begin(ctx, bookingID, creditMinor, "", ""))
}

// Cancel supersedes the in-flight negotiation, if any, without issuing a
// new one.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest.Add(1)
	if c.cancel != nil {
		c.cancel()
	}
	c.inflight, c.ctx, c.cancel = 0, nil, nil
}

// IsCurrent reports whether id is the latest issued request id.
func (c *Client) IsCurrent(id uint64) bool {
	return id != 0 && c.latest.Load() == id
}

func (c *Client) finish(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != id {
		return
	}
	c.cancel()
	c.inflight, c.ctx, c.cancel = 0, nil, nil
}

func classifyTransport(err error, canceled bool) error {
	var fv *FloorViolationError
	if errors.As(err, &fv) {
		return fv
	}
	if canceled {
		return ErrAborted
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Err: err}
}
