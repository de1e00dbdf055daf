package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// gatedTransport blocks every call until the test releases it and ignores
// cancellation, so fencing is exercised on its own.
type gatedTransport struct {
	mu      sync.Mutex
	started chan Request
	gates   map[int64]chan result
}

type result struct {
	resp model.PricingPreviewResponse
	err  error
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{started: make(chan Request, 8), gates: make(map[int64]chan result)}
}

func (g *gatedTransport) gate(credit int64) chan result {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[credit]
	if !ok {
		ch = make(chan result, 1)
		g.gates[credit] = ch
	}
	return ch
}

func (g *gatedTransport) Preview(_ context.Context, req Request) (model.PricingPreviewResponse, error) {
	g.started <- req
	r := <-g.gate(req.CreditMinor)
	return r.resp, r.err
}

func waitStarted(t *testing.T, g *gatedTransport) Request {
	t.Helper()
	select {
	case r := <-g.started:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("transport was not called")
		return Request{}
	}
}

func TestClientLatestRequestWins(t *testing.T) {
	tr := newGatedTransport()
	c := NewClient(tr, nil)
	ctx := context.Background()

	reqA := c.Begin(ctx, "bk-1", 0, "", "")
	errA := make(chan error, 1)
	go func() {
		_, err := c.Do(reqA)
		errA <- err
	}()
	waitStarted(t, tr)

	reqB := c.Begin(ctx, "bk-1", 4500, "", "")
	if reqB.RequestID <= reqA.RequestID {
		t.Fatalf("request ids must increase: %d then %d", reqA.RequestID, reqB.RequestID)
	}
	respB := make(chan model.PricingPreviewResponse, 1)
	go func() {
		resp, err := c.Do(reqB)
		if err != nil {
			t.Errorf("B failed: %v", err)
		}
		respB <- resp
	}()
	waitStarted(t, tr)

	tr.gate(4500) <- result{resp: model.PricingPreviewResponse{CreditAppliedMinor: 4500}}
	if got := <-respB; got.CreditAppliedMinor != 4500 {
		t.Fatalf("B response = %+v", got)
	}

	// A answers last and successfully; it must still be discarded.
	tr.gate(0) <- result{resp: model.PricingPreviewResponse{CreditAppliedMinor: 0}}
	if err := <-errA; !errors.Is(err, ErrAborted) {
		t.Fatalf("stale response must abort, got %v", err)
	}
}

func TestClientBeginCancelsPreviousContext(t *testing.T) {
	c := NewClient(newGatedTransport(), nil)
	first := c.Begin(context.Background(), "bk", 100, "", "")
	c.mu.Lock()
	firstCtx := c.ctx
	c.mu.Unlock()

	c.Begin(context.Background(), "bk", 200, "", "")
	if firstCtx.Err() == nil {
		t.Fatal("superseded negotiation context was not canceled")
	}
	if _, err := c.Do(first); !errors.Is(err, ErrAborted) {
		t.Fatalf("Do on superseded request = %v, want ErrAborted", err)
	}
}

type funcTransport func(ctx context.Context, req Request) (model.PricingPreviewResponse, error)

func (f funcTransport) Preview(ctx context.Context, req Request) (model.PricingPreviewResponse, error) {
	return f(ctx, req)
}

func TestClientSurfacesFailures(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"floor violation", &FloorViolationError{Detail: "minimum price not met"}, func(err error) bool {
			var fv *FloorViolationError
			return errors.As(err, &fv) && fv.Detail == "minimum price not met"
		}},
		{"transport error", &TransportError{Status: 502, Err: errors.New("bad gateway")}, func(err error) bool {
			var te *TransportError
			return errors.As(err, &te) && te.Status == 502
		}},
		{"plain error is wrapped", errors.New("dial tcp: refused"), func(err error) bool {
			var te *TransportError
			return errors.As(err, &te) && te.Status == 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(funcTransport(func(context.Context, Request) (model.PricingPreviewResponse, error) {
				return model.PricingPreviewResponse{}, tt.err
			}), nil)
			_, err := c.Negotiate(context.Background(), "bk", 100)
			if !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestClientParentCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(funcTransport(func(ctx context.Context, _ Request) (model.PricingPreviewResponse, error) {
		cancel()
		<-ctx.Done()
		return model.PricingPreviewResponse{}, &TransportError{Err: ctx.Err()}
	}), nil)
	if _, err := c.Negotiate(ctx, "bk", 100); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestClientCancelSupersedes(t *testing.T) {
	c := NewClient(newGatedTransport(), nil)
	req := c.Begin(context.Background(), "bk", 100, "", "")
	c.Cancel()
	if c.IsCurrent(req.RequestID) {
		t.Fatal("request still current after Cancel")
	}
	if _, err := c.Do(req); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}
