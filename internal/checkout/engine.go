package checkout

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/checkout-credits/internal/decision"
	"github.com/iliyamo/checkout-credits/internal/model"
	"github.com/iliyamo/checkout-credits/internal/preview"
	"github.com/iliyamo/checkout-credits/internal/pricing"
)

// DefaultDebounce is the quiet period between the last pricing input and the
// negotiation it triggers.
const DefaultDebounce = 200 * time.Millisecond

// afterEffectTimeout bounds persistence and publishing of an accepted
// decision, which must complete even when the engine is closing.
const afterEffectTimeout = 5 * time.Second

// OrderSummaryRefresher pulls updated authoritative totals from the
// booking-record collaborator after a referral is applied.  The summary is
// fed back into the engine as OrderSummaryRefreshed.
type OrderSummaryRefresher interface {
	RefreshOrderSummary(ctx context.Context, bookingID string) (model.OrderSummary, error)
}

// AcceptedDecision describes one accepted negotiation for audit consumers.
type AcceptedDecision struct {
	BookingID  string
	RequestID  uint64
	Decision   model.CreditDecision
	View       model.BookingPriceView
	Method     model.PaymentMethod
	AcceptedAt time.Time
}

// DecisionPublisher forwards accepted decisions; failures are logged only.
type DecisionPublisher interface {
	PublishDecisionAccepted(ctx context.Context, d AcceptedDecision) error
}

// Config holds per-draft settings.
type Config struct {
	BookingID      string
	Debounce       time.Duration
	FeeBasisPoints int64 // cached student fee rate for the first-render estimate
}

// Deps are the engine's collaborators.  Transport and Store are required;
// the rest are optional.
type Deps struct {
	Transport preview.Transport
	Store     decision.Store
	Refresher OrderSummaryRefresher
	Publisher DecisionPublisher
	Advisor   *pricing.Advisor
	Metrics   *Metrics
	Logger    logrus.FieldLogger

	// OnChange, when set, receives a snapshot after every state transition.
	// It runs on the goroutine that caused the transition and must not
	// call back into the engine synchronously.
	OnChange func(Snapshot)
}

// Init carries the inputs of Initialize.  When StudentFeeMinor is zero the
// fee is estimated from the configured fee rate until the server answers.
type Init struct {
	WalletMinor     int64
	BasePriceMinor  int64
	StudentFeeMinor int64
	Modality        string
}

// Engine runs the checkout pricing state machine for one booking draft.
// All transitions are serialized; negotiations and timers feed their
// results back as events.
type Engine struct {
	cfg      Config
	client   *preview.Client
	store    decision.Store
	refresh  OrderSummaryRefresher
	publish  DecisionPublisher
	advisor  *pricing.Advisor
	metrics  *Metrics
	log      logrus.FieldLogger
	onChange func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	timer  *time.Timer
	closed bool
	issued map[uint64]time.Time

	persistMu   sync.Mutex
	persistSeq  uint64
	persistedAt uint64
}

// New builds an engine.  A missing booking id is a precondition failure and
// the engine is not created.
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.BookingID == "" {
		return nil, ErrMissingBookingID
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	log := deps.Logger
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	log = log.WithField("booking_id", cfg.BookingID)
	store := deps.Store
	if store == nil {
		store = decision.NewMemoryStore("checkout")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		client:   preview.NewClient(deps.Transport, log),
		store:    store,
		refresh:  deps.Refresher,
		publish:  deps.Publisher,
		advisor:  deps.Advisor,
		metrics:  deps.Metrics,
		log:      log,
		onChange: deps.OnChange,
		ctx:      ctx,
		cancel:   cancel,
		issued:   make(map[uint64]time.Time),
	}, nil
}

// Initialize reads the persisted decision once and starts the first
// negotiation.  Store failures are logged and treated as "no decision".
func (e *Engine) Initialize(ctx context.Context, in Init) error {
	e.mu.Lock()
	initialized, closed := e.state.Initialized, e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if initialized {
		return ErrAlreadyInitialized
	}

	restored, err := e.store.Load(ctx, e.cfg.BookingID)
	if err != nil {
		e.log.WithError(err).Warn("could not read persisted credit decision")
		restored = nil
	}

	return e.dispatch(func(s State) error {
		if s.Initialized {
			return ErrAlreadyInitialized
		}
		return nil
	}, Initialized{
		BookingID:       e.cfg.BookingID,
		WalletMinor:     in.WalletMinor,
		BasePriceMinor:  in.BasePriceMinor,
		StudentFeeMinor: in.StudentFeeMinor,
		FeeBasisPoints:  e.cfg.FeeBasisPoints,
		Modality:        in.Modality,
		Restored:        restored,
	})
}

// SetDesiredAmount records the slider position.  The amount is clamped to
// [0, min(wallet, total due)] and negotiated once input has been quiet for
// the debounce period.
func (e *Engine) SetDesiredAmount(amountMinor int64) error {
	return e.input(CreditAmountChanged{AmountMinor: amountMinor, Source: SourceSlider})
}

// ToggleOff removes credit and remembers that the user chose to.
func (e *Engine) ToggleOff() error {
	return e.input(CreditAmountChanged{Source: SourceToggleOff})
}

// ToggleOn re-applies credit, using as much as allowed when none is set.
func (e *Engine) ToggleOn() error {
	return e.input(CreditAmountChanged{Source: SourceToggleOn})
}

// ApplyReferral handles the referral widget's onApplied event.
func (e *Engine) ApplyReferral(amountMinor int64) error {
	return e.input(ReferralApplied{AmountMinor: amountMinor})
}

// ActivatePromo turns a promo code on.  It fails with ErrPromoBlocked,
// without any network call, while referral credit is applied.
func (e *Engine) ActivatePromo(code string) error {
	var result error
	err := e.dispatch(func(s State) error {
		if !s.Initialized {
			return ErrNotInitialized
		}
		_, result = s.Discounts.ActivatePromo(code)
		return nil
	}, PromoActivated{Code: code})
	if err != nil {
		return err
	}
	return result
}

func (e *Engine) DeactivatePromo() error {
	return e.input(PromoDeactivated{})
}

// ChangeModality switches the lesson modality, a pricing input.
func (e *Engine) ChangeModality(modality string) error {
	return e.input(ModalityChanged{Modality: modality})
}

func (e *Engine) DismissNotice() error {
	return e.input(NoticeDismissed{})
}

// Snapshot returns the current read model.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotOf(e.state, e.advisor)
}

// ChargeAmounts prepares the numbers for the charge collaborator.  It
// refuses while the price is an estimate or a newer price may still arrive.
func (e *Engine) ChargeAmounts(cardRef string) (model.ChargeAmounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return model.ChargeAmounts{}, ErrNotInitialized
	}
	if !e.state.HasAccepted || e.state.Pending() {
		return model.ChargeAmounts{}, ErrPriceNotConfirmed
	}
	v := e.state.View
	return model.ChargeAmounts{
		BookingID:           v.BookingID,
		StudentPayableMinor: v.StudentPayableMinor,
		CreditAppliedMinor:  v.CreditAppliedMinor,
		CardRef:             cardRef,
		Method:              e.state.Method,
	}, nil
}

// ClearCheckoutState deletes the persisted decision for this booking.  It
// is the only path that removes a decision.
func (e *Engine) ClearCheckoutState(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	// Any accepted write still queued must not resurrect the record.
	e.mu.Lock()
	e.persistedAt = e.persistSeq
	e.mu.Unlock()
	return e.store.Clear(ctx, e.cfg.BookingID)
}

// Close stops timers, cancels the in-flight negotiation and waits for
// background work to finish.  A decision accepted before Close is still
// persisted and published.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()
	e.cancel()
	e.client.Cancel()
	e.wg.Wait()
}

func (e *Engine) input(ev Event) error {
	return e.dispatch(func(s State) error {
		if !s.Initialized {
			return ErrNotInitialized
		}
		return nil
	}, ev)
}

// dispatch runs guard and, if it passes, reduces ev under the engine lock.
// Effects that touch the timer or the preview client run under the lock;
// persistence and publishing run afterwards on this goroutine.
func (e *Engine) dispatch(guard func(State) error, ev Event) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if guard != nil {
		if err := guard(e.state); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	if stale, id := e.isStale(ev); stale {
		delete(e.issued, id)
		e.mu.Unlock()
		e.metrics.stale()
		return nil
	}
	var effects []Effect
	e.state, effects = Reduce(e.state, ev)
	after := e.runLocked(effects)
	snap := snapshotOf(e.state, e.advisor)
	e.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	if e.onChange != nil {
		e.onChange(snap)
	}
	return nil
}

// isStale reports preview results that no longer match the in-flight
// request.  Reduce ignores them too; this only keeps them out of OnChange
// and the metrics.
func (e *Engine) isStale(ev Event) (bool, uint64) {
	var id uint64
	switch ev := ev.(type) {
	case PreviewAccepted:
		id = ev.RequestID
	case PreviewRejected:
		id = ev.RequestID
	default:
		return false, 0
	}
	return id != e.state.InFlightID, id
}

func (e *Engine) runLocked(effects []Effect) []func() {
	var after []func()
	for _, eff := range effects {
		switch eff := eff.(type) {
		case ScheduleDebounce:
			if e.timer != nil && e.timer.Stop() {
				e.metrics.coalesced()
			}
			gen := eff.Gen
			e.timer = time.AfterFunc(e.cfg.Debounce, func() {
				_ = e.dispatch(nil, DebounceElapsed{Gen: gen})
			})
		case CancelNegotiation:
			e.client.Cancel()
		case StartNegotiation:
			e.startLocked(eff.CreditMinor)
		case PersistDecision:
			e.persistSeq++
			seq, d := e.persistSeq, eff.Decision
			after = append(after, func() { e.persist(seq, d) })
		case PublishAccepted:
			if e.publish == nil {
				continue
			}
			ad := AcceptedDecision{
				BookingID:  e.cfg.BookingID,
				RequestID:  eff.RequestID,
				Decision:   eff.Decision,
				View:       eff.View,
				Method:     eff.Method,
				AcceptedAt: time.Now().UTC(),
			}
			after = append(after, func() {
				ctx, cancel := e.afterCtx()
				defer cancel()
				if err := e.publish.PublishDecisionAccepted(ctx, ad); err != nil {
					e.log.WithError(err).Warn("could not publish accepted credit decision")
				}
			})
		case RefreshOrderSummary:
			if e.refresh != nil {
				e.refreshLocked()
			}
		case ReportOutcome:
			e.report(eff)
		}
	}
	return after
}

// afterCtx outlives Close so that an accepted decision is not dropped
// half-written.
func (e *Engine) afterCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(e.ctx), afterEffectTimeout)
}

func (e *Engine) refreshLocked() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		sum, err := e.refresh.RefreshOrderSummary(e.ctx, e.cfg.BookingID)
		if err != nil {
			if e.ctx.Err() == nil {
				e.log.WithError(err).Warn("order summary refresh failed")
			}
			return
		}
		_ = e.dispatch(nil, OrderSummaryRefreshed{Summary: sum})
	}()
}

func (e *Engine) startLocked(credit int64) {
	req := e.client.Begin(e.ctx, e.cfg.BookingID, credit, e.state.Modality, e.state.Discounts.ActivePromoCode())
	e.state, _ = Reduce(e.state, NegotiationIssued{RequestID: req.RequestID, CreditMinor: credit})
	e.issued[req.RequestID] = time.Now()
	e.log.WithFields(logrus.Fields{
		"request_id":   req.RequestID,
		"credit_minor": credit,
	}).Debug("negotiating price")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		resp, err := e.client.Do(req)
		if err != nil {
			_ = e.dispatch(nil, PreviewRejected{RequestID: req.RequestID, Err: err})
			return
		}
		_ = e.dispatch(nil, PreviewAccepted{RequestID: req.RequestID, Response: resp})
	}()
}

func (e *Engine) report(r ReportOutcome) {
	if started, ok := e.issued[r.RequestID]; ok {
		e.metrics.observe(time.Since(started))
		delete(e.issued, r.RequestID)
	}
	e.metrics.outcome(r.Class)
	entry := e.log.WithFields(logrus.Fields{"request_id": r.RequestID, "outcome": r.Class})
	switch r.Class {
	case ClassAccepted:
		entry.Debug("price accepted")
	case ClassAborted:
		entry.Debug("negotiation aborted")
	default:
		entry.WithError(r.Err).Warn("negotiation rejected, rolled back")
	}
}

// persist writes accepted decisions in acceptance order; a write overtaken
// by a newer one is skipped.
func (e *Engine) persist(seq uint64, d model.CreditDecision) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	e.mu.Lock()
	outdated := seq <= e.persistedAt
	e.mu.Unlock()
	if outdated {
		return
	}
	ctx, cancel := e.afterCtx()
	defer cancel()
	if err := e.store.Save(ctx, e.cfg.BookingID, d); err != nil {
		e.metrics.persistFailed()
		e.log.WithError(err).Warn("could not persist credit decision")
	}
	e.mu.Lock()
	e.persistedAt = seq
	e.mu.Unlock()
}
