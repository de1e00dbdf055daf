package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/checkout-credits/internal/decision"
	"github.com/iliyamo/checkout-credits/internal/model"
	"github.com/iliyamo/checkout-credits/internal/preview"
)

type fakeTransport struct {
	mu       sync.Mutex
	calls    []preview.Request
	referral int64
	respond  func(ctx context.Context, req preview.Request) (model.PricingPreviewResponse, error)
}

func (f *fakeTransport) Preview(ctx context.Context, req preview.Request) (model.PricingPreviewResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond, referral := f.respond, f.referral
	f.mu.Unlock()
	if respond != nil {
		return respond(ctx, req)
	}
	return quoteWithReferral(req.CreditMinor, referral), nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) lastCall() preview.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type failingStore struct{ decision.Store }

func (failingStore) Load(context.Context, string) (*model.CreditDecision, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingStore) Save(context.Context, string, model.CreditDecision) error {
	return errors.New("redis: connection refused")
}

// summaryRefresher answers with a fixed booking record and counts calls.
type summaryRefresher struct {
	n       atomic.Int32
	summary model.OrderSummary
}

func (r *summaryRefresher) RefreshOrderSummary(_ context.Context, bookingID string) (model.OrderSummary, error) {
	r.n.Add(1)
	sum := r.summary
	sum.BookingID = bookingID
	return sum, nil
}

// gatedStore holds Save until release is closed.
type gatedStore struct {
	decision.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	saveErr atomic.Value
}

func (g *gatedStore) Save(ctx context.Context, bookingID string, d model.CreditDecision) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	err := g.Store.Save(ctx, bookingID, d)
	if err != nil {
		g.saveErr.Store(err)
	}
	return err
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []AcceptedDecision
}

func (p *recordingPublisher) PublishDecisionAccepted(_ context.Context, d AcceptedDecision) error {
	p.mu.Lock()
	p.got = append(p.got, d)
	p.mu.Unlock()
	return nil
}

func newTestEngine(t *testing.T, deps Deps, debounce time.Duration) *Engine {
	t.Helper()
	e, err := New(Config{BookingID: "bk-1", Debounce: debounce}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func settledAt(e *Engine, credit int64) func() bool {
	return func() bool {
		s := e.Snapshot()
		return !s.Pending && !s.Estimated && s.View.CreditAppliedMinor == credit
	}
}

func lesson(wallet int64) Init {
	return Init{WalletMinor: wallet, BasePriceMinor: 10000, StudentFeeMinor: 2000}
}

func TestNewRequiresBookingID(t *testing.T) {
	if _, err := New(Config{}, Deps{Transport: &fakeTransport{}}); !errors.Is(err, ErrMissingBookingID) {
		t.Fatalf("err = %v, want ErrMissingBookingID", err)
	}
}

func TestInputBeforeInitialize(t *testing.T) {
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}}, 10*time.Millisecond)
	if err := e.SetDesiredAmount(100); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.ChargeAmounts("card_1"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v", err)
	}
}

func TestInitializeTwice(t *testing.T) {
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}}, 10*time.Millisecond)
	if err := e.Initialize(context.Background(), lesson(0)); err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(context.Background(), lesson(0)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineDebounceCoalescesInputs(t *testing.T) {
	tr := &fakeTransport{}
	m := NewMetrics(prometheus.NewRegistry())
	e := newTestEngine(t, Deps{Transport: tr, Metrics: m}, 20*time.Millisecond)

	if err := e.Initialize(context.Background(), lesson(4500)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "auto-applied credit", settledAt(e, 4500))

	for _, amount := range []int64{1000, 2000, 3000} {
		if err := e.SetDesiredAmount(amount); err != nil {
			t.Fatal(err)
		}
	}
	if got := e.Snapshot().DesiredCreditMinor; got != 3000 {
		t.Fatalf("desired amount must follow the slider immediately, got %d", got)
	}
	waitFor(t, "debounced negotiation", settledAt(e, 3000))
	time.Sleep(50 * time.Millisecond)

	if n := tr.callCount(); n != 2 {
		t.Fatalf("preview calls = %d, want 2", n)
	}
	if got := testutil.ToFloat64(m.debounceCoalesced); got != 2 {
		t.Fatalf("coalesced = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.negotiations.WithLabelValues(string(ClassAccepted))); got != 2 {
		t.Fatalf("accepted = %v, want 2", got)
	}
}

func TestEngineDiscardsLateResponse(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{}
	tr.respond = func(_ context.Context, req preview.Request) (model.PricingPreviewResponse, error) {
		if req.CreditMinor == 1000 {
			// Ignores cancellation and answers late.
			<-gate
		}
		return quote(req.CreditMinor), nil
	}
	store := decision.NewMemoryStore("test")
	_ = store.Save(context.Background(), "bk-1", model.CreditDecision{ExplicitlyRemoved: true})
	e := newTestEngine(t, Deps{Transport: tr, Store: store}, 10*time.Millisecond)

	if err := e.Initialize(context.Background(), lesson(8000)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "initial price", settledAt(e, 0))

	_ = e.SetDesiredAmount(1000)
	waitFor(t, "first negotiation", func() bool { return tr.callCount() == 2 })
	_ = e.SetDesiredAmount(2000)
	waitFor(t, "second negotiation", settledAt(e, 2000))

	close(gate)
	e.Close()
	if got := e.Snapshot().View.CreditAppliedMinor; got != 2000 {
		t.Fatalf("late response overwrote the view: credit %d", got)
	}
	d, _ := store.Load(context.Background(), "bk-1")
	if d == nil || d.LastCreditMinor != 2000 {
		t.Fatalf("persisted %+v, want 2000", d)
	}
}

func TestEngineRemovalPersistsAcrossEngines(t *testing.T) {
	store := decision.NewMemoryStore("test")
	pub := &recordingPublisher{}
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}, Store: store, Publisher: pub}, 10*time.Millisecond)
	if err := e.Initialize(context.Background(), lesson(4500)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "auto-apply", settledAt(e, 4500))
	if err := e.ToggleOff(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "removal", settledAt(e, 0))
	e.Close()

	d, err := store.Load(context.Background(), "bk-1")
	if err != nil || d == nil {
		t.Fatalf("Load: %v %v", d, err)
	}
	if *d != (model.CreditDecision{LastCreditMinor: 0, ExplicitlyRemoved: true}) {
		t.Fatalf("persisted %+v", *d)
	}
	pub.mu.Lock()
	if len(pub.got) != 2 || pub.got[1].Method != model.PaymentCard {
		t.Fatalf("published %+v", pub.got)
	}
	pub.mu.Unlock()

	tr := &fakeTransport{}
	reloaded := newTestEngine(t, Deps{Transport: tr, Store: store}, 10*time.Millisecond)
	if err := reloaded.Initialize(context.Background(), lesson(4500)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reload", settledAt(reloaded, 0))
	if c := tr.lastCall(); c.CreditMinor != 0 {
		t.Fatalf("reload negotiated %d, want 0", c.CreditMinor)
	}
	if s := reloaded.Snapshot(); s.CreditsOn || s.CreditLabel != "Using $0.00" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}

func TestEngineStoreFailureDoesNotBlockCheckout(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}, Store: failingStore{}, Metrics: m}, 10*time.Millisecond)
	if err := e.Initialize(context.Background(), lesson(4500)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "accepted price", settledAt(e, 4500))
	e.Close()
	if got := testutil.ToFloat64(m.persistFailures); got != 1 {
		t.Fatalf("persist failures = %v, want 1", got)
	}
	if s := e.Snapshot(); s.PaymentMethod != model.PaymentMixed {
		t.Fatalf("method = %s", s.PaymentMethod)
	}
}

func TestEngineTransportErrorRollsBack(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = func(_ context.Context, req preview.Request) (model.PricingPreviewResponse, error) {
		if req.CreditMinor == 3000 {
			return model.PricingPreviewResponse{}, &preview.TransportError{Status: 503}
		}
		return quote(req.CreditMinor), nil
	}
	e := newTestEngine(t, Deps{Transport: tr}, 10*time.Millisecond)
	_ = e.Initialize(context.Background(), lesson(4500))
	waitFor(t, "auto-apply", settledAt(e, 4500))

	_ = e.SetDesiredAmount(3000)
	waitFor(t, "rollback", func() bool {
		s := e.Snapshot()
		return !s.Pending && s.Notice != nil
	})
	s := e.Snapshot()
	if s.DesiredCreditMinor != 4500 || s.Notice.Kind != NoticeRetry {
		t.Fatalf("desired=%d notice=%+v", s.DesiredCreditMinor, s.Notice)
	}
	if err := e.DismissNotice(); err != nil || e.Snapshot().Notice != nil {
		t.Fatalf("dismiss: %v", err)
	}
}

func TestEngineReferralRefreshesSummaryOnce(t *testing.T) {
	tr := &fakeTransport{}
	ref := &summaryRefresher{summary: model.OrderSummary{BasePriceMinor: 10000, StudentFeeMinor: 2000, ReferralAppliedMinor: 2000}}
	e := newTestEngine(t, Deps{Transport: tr, Refresher: ref}, 50*time.Millisecond)
	_ = e.Initialize(context.Background(), lesson(0))
	waitFor(t, "initial price", settledAt(e, 0))

	if err := e.ActivatePromo("SPRING"); err != nil {
		t.Fatal(err)
	}
	tr.mu.Lock()
	tr.referral = 2000
	tr.mu.Unlock()
	if err := e.ApplyReferral(2000); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "referral price", func() bool {
		s := e.Snapshot()
		return !s.Pending && s.View.ReferralAppliedMinor == 2000
	})
	if n := ref.n.Load(); n != 1 {
		t.Fatalf("refresh calls = %d, want 1", n)
	}
	s := e.Snapshot()
	if s.PromoActive || s.PromoCode != "" {
		t.Fatalf("promo must be forced off: %+v", s)
	}
	if c := tr.lastCall(); c.PromoCode != "" {
		t.Fatalf("negotiated with promo %q", c.PromoCode)
	}
	if err := e.ActivatePromo("SPRING"); !errors.Is(err, ErrPromoBlocked) {
		t.Fatalf("err = %v, want ErrPromoBlocked", err)
	}
	if n := tr.callCount(); n != 2 {
		t.Fatalf("blocked promo must not negotiate, calls = %d", n)
	}
}

func TestChargeAmounts(t *testing.T) {
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}}, time.Second)
	_ = e.Initialize(context.Background(), lesson(4500))
	waitFor(t, "auto-apply", settledAt(e, 4500))

	got, err := e.ChargeAmounts("card_1")
	if err != nil {
		t.Fatal(err)
	}
	want := model.ChargeAmounts{BookingID: "bk-1", StudentPayableMinor: 7500, CreditAppliedMinor: 4500, CardRef: "card_1", Method: model.PaymentMixed}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	_ = e.SetDesiredAmount(1000)
	if _, err := e.ChargeAmounts("card_1"); !errors.Is(err, ErrPriceNotConfirmed) {
		t.Fatalf("err = %v, want ErrPriceNotConfirmed while pending", err)
	}
}

func TestClearCheckoutState(t *testing.T) {
	store := decision.NewMemoryStore("test")
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}, Store: store}, 10*time.Millisecond)
	_ = e.Initialize(context.Background(), lesson(4500))
	waitFor(t, "auto-apply", settledAt(e, 4500))
	e.Close()

	if err := e.ClearCheckoutState(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d, _ := store.Load(context.Background(), "bk-1"); d != nil {
		t.Fatalf("decision survived clear: %+v", d)
	}
}

func TestClosedEngineRejectsInput(t *testing.T) {
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}}, 10*time.Millisecond)
	_ = e.Initialize(context.Background(), lesson(0))
	e.Close()
	if err := e.SetDesiredAmount(10); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineAdoptsRefreshedReferral(t *testing.T) {
	tr := &fakeTransport{}
	ref := &summaryRefresher{summary: model.OrderSummary{BasePriceMinor: 10000, StudentFeeMinor: 2000, ReferralAppliedMinor: 1500}}
	e := newTestEngine(t, Deps{Transport: tr, Refresher: ref}, 20*time.Millisecond)
	_ = e.Initialize(context.Background(), lesson(12000))
	waitFor(t, "auto-apply", settledAt(e, 12000))

	// The booking record caps the referral at 1500.
	tr.mu.Lock()
	tr.referral = 1500
	tr.mu.Unlock()
	if err := e.ApplyReferral(2000); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "refreshed referral", func() bool {
		s := e.Snapshot()
		return !s.Pending && s.ReferralAppliedMinor == 1500 && s.View.ReferralAppliedMinor == 1500
	})
	s := e.Snapshot()
	if s.MaxCreditMinor != 10500 {
		t.Fatalf("max credit = %d, want 10500", s.MaxCreditMinor)
	}
	if c := tr.lastCall(); c.CreditMinor > 10500 || s.View.StudentPayableMinor != 0 {
		t.Fatalf("negotiated credit %d with payable %d after referral", c.CreditMinor, s.View.StudentPayableMinor)
	}
	if n := ref.n.Load(); n != 1 {
		t.Fatalf("refresh calls = %d, want 1", n)
	}
}

func TestCloseKeepsAcceptedDecision(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	inner := decision.NewRedisStore(rdb, "checkout:42", time.Hour)
	store := &gatedStore{Store: inner, entered: make(chan struct{}), release: make(chan struct{})}

	e, err := New(Config{BookingID: "bk-1", Debounce: time.Second}, Deps{Transport: &fakeTransport{}, Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Initialize(context.Background(), lesson(4500)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("accepted decision was never saved")
	}

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()
	waitFor(t, "close to start", func() bool { return e.ctx.Err() != nil })
	close(store.release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	if err, _ := store.saveErr.Load().(error); err != nil {
		t.Fatalf("save after Close: %v", err)
	}
	got, err := inner.Load(context.Background(), "bk-1")
	if err != nil || got == nil || got.LastCreditMinor != 4500 {
		t.Fatalf("persisted = %+v, %v", got, err)
	}
}

func TestCloseDropsRefreshResult(t *testing.T) {
	block := make(chan struct{})
	ref := refresherFunc(func(ctx context.Context, _ string) (model.OrderSummary, error) {
		close(block)
		<-ctx.Done()
		return model.OrderSummary{}, ctx.Err()
	})
	e := newTestEngine(t, Deps{Transport: &fakeTransport{}, Refresher: ref}, time.Second)
	_ = e.Initialize(context.Background(), lesson(0))
	if err := e.ApplyReferral(1000); err != nil {
		t.Fatal(err)
	}
	<-block
	e.Close()
	if s := e.Snapshot(); s.ReferralAppliedMinor != 1000 {
		t.Fatalf("referral = %d, want 1000", s.ReferralAppliedMinor)
	}
}

type refresherFunc func(ctx context.Context, bookingID string) (model.OrderSummary, error)

func (f refresherFunc) RefreshOrderSummary(ctx context.Context, bookingID string) (model.OrderSummary, error) {
	return f(ctx, bookingID)
}
