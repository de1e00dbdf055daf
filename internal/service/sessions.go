package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/checkout-credits/internal/checkout"
	"github.com/iliyamo/checkout-credits/internal/collab"
	"github.com/iliyamo/checkout-credits/internal/decision"
	"github.com/iliyamo/checkout-credits/internal/floorcache"
	"github.com/iliyamo/checkout-credits/internal/preview"
)

// ErrSessionNotFound is returned for bookings without an open session.
var ErrSessionNotFound = errors.New("checkout session not found")

// Identity is the authenticated caller.  Token is forwarded to the pricing,
// wallet and booking services.
type Identity struct {
	UserID string
	Token  string
}

// OpenRequest carries the page data of a checkout draft.  When
// BasePriceMinor is zero the amounts are read from the booking record.
type OpenRequest struct {
	BasePriceMinor  int64
	StudentFeeMinor int64
	Modality        string
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	Namespace      string
	SessionTTL     time.Duration
	Debounce       time.Duration
	FeeBasisPoints int64
	Preview        preview.HTTPConfig
	Wallet         collab.Config
	Booking        collab.Config
}

// Deps are shared collaborators of every session.  Redis may be nil, in
// which case decisions are kept in process memory.
type Deps struct {
	Redis   redis.UniversalClient
	Floors  *floorcache.Cache
	Events  EventSink
	Metrics *checkout.Metrics
	Logger  logrus.FieldLogger

	// NewTransport overrides the preview transport, mainly for tests.
	NewTransport func(id Identity) preview.Transport
}

type session struct {
	engine   *checkout.Engine
	lastUsed time.Time
}

// Sessions keeps one checkout engine per (user, booking draft).
type Sessions struct {
	cfg  SessionConfig
	deps Deps
	log  logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*session
	memory   map[string]*decision.MemoryStore
}

func NewSessions(cfg SessionConfig, deps Deps) *Sessions {
	if cfg.Namespace == "" {
		cfg.Namespace = "checkout"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sessions{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		sessions: make(map[string]*session),
		memory:   make(map[string]*decision.MemoryStore),
	}
}

func sessionKey(userID, bookingID string) string { return userID + "/" + bookingID }

// Open starts (or restarts, as on a page reload) the engine for bookingID
// and returns its first snapshot.  The persisted decision of a previous
// engine for the same draft is picked up by the new one.
func (s *Sessions) Open(ctx context.Context, id Identity, bookingID string, req OpenRequest) (checkout.Snapshot, error) {
	if bookingID == "" {
		return checkout.Snapshot{}, checkout.ErrMissingBookingID
	}
	log := s.log.WithFields(logrus.Fields{"user_id": id.UserID, "booking_id": bookingID})

	booking := s.bookingClient(id)
	if req.BasePriceMinor <= 0 && booking != nil {
		summary, err := booking.Summary(ctx, bookingID)
		if err != nil {
			return checkout.Snapshot{}, err
		}
		req.BasePriceMinor = summary.BasePriceMinor
		req.StudentFeeMinor = summary.StudentFeeMinor
		if req.Modality == "" {
			req.Modality = summary.Modality
		}
	}

	var wallet int64
	if s.cfg.Wallet.BaseURL != "" {
		wc := s.walletConfig(id)
		spendable, err := collab.NewWalletClient(wc).Spendable(ctx)
		if err != nil {
			// Without a balance the student simply pays by card.
			log.WithError(err).Warn("wallet balance unavailable")
		}
		wallet = spendable
	}

	deps := checkout.Deps{
		Transport: s.transport(id),
		Store:     s.store(id.UserID),
		Metrics:   s.deps.Metrics,
		Logger:    log,
	}
	if booking != nil {
		deps.Refresher = booking
	}
	if s.deps.Events != nil {
		deps.Publisher = userPublisher{sink: s.deps.Events, userID: id.UserID}
	}
	if s.deps.Floors != nil {
		deps.Advisor = s.deps.Floors.Advisor(ctx)
	}
	engine, err := checkout.New(checkout.Config{
		BookingID:      bookingID,
		Debounce:       s.cfg.Debounce,
		FeeBasisPoints: s.cfg.FeeBasisPoints,
	}, deps)
	if err != nil {
		return checkout.Snapshot{}, err
	}

	key := sessionKey(id.UserID, bookingID)
	s.mu.Lock()
	prev := s.sessions[key]
	s.sessions[key] = &session{engine: engine, lastUsed: time.Now()}
	s.mu.Unlock()
	if prev != nil {
		prev.engine.Close()
	}

	if err := engine.Initialize(ctx, checkout.Init{
		WalletMinor:     wallet,
		BasePriceMinor:  req.BasePriceMinor,
		StudentFeeMinor: req.StudentFeeMinor,
		Modality:        req.Modality,
	}); err != nil {
		return checkout.Snapshot{}, err
	}
	return engine.Snapshot(), nil
}

// Engine returns the open engine for bookingID.
func (s *Sessions) Engine(userID, bookingID string) (*checkout.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(userID, bookingID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastUsed = time.Now()
	return sess.engine, nil
}

// Clear deletes the persisted decision of bookingID and closes its session.
func (s *Sessions) Clear(ctx context.Context, userID, bookingID string) error {
	key := sessionKey(userID, bookingID)
	s.mu.Lock()
	sess := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if sess == nil {
		return s.store(userID).Clear(ctx, bookingID)
	}
	sess.engine.Close()
	return sess.engine.ClearCheckoutState(ctx)
}

// Sweep closes sessions idle for longer than the session TTL.  Persisted
// decisions are left to expire on their own.
func (s *Sessions) Sweep(now time.Time) int {
	var idle []*session
	s.mu.Lock()
	for key, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.cfg.SessionTTL {
			idle = append(idle, sess)
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()
	for _, sess := range idle {
		sess.engine.Close()
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Sweep(now); n > 0 {
				s.log.WithField("closed", n).Info("closed idle checkout sessions")
			}
		}
	}
}

// Close shuts every session down.
func (s *Sessions) Close() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.engine.Close()
	}
}

func (s *Sessions) store(userID string) decision.Store {
	ns := s.cfg.Namespace + ":" + userID
	if s.deps.Redis != nil {
		return decision.NewRedisStore(s.deps.Redis, ns, s.cfg.SessionTTL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memory[ns]
	if !ok {
		m = decision.NewMemoryStore(ns)
		s.memory[ns] = m
	}
	return m
}

func (s *Sessions) transport(id Identity) preview.Transport {
	if s.deps.NewTransport != nil {
		return s.deps.NewTransport(id)
	}
	cfg := s.cfg.Preview
	cfg.BearerToken = id.Token
	return preview.NewHTTPTransport(cfg)
}

func (s *Sessions) walletConfig(id Identity) collab.Config {
	cfg := s.cfg.Wallet
	cfg.BearerToken = id.Token
	return cfg
}

func (s *Sessions) bookingClient(id Identity) *collab.BookingClient {
	if s.cfg.Booking.BaseURL == "" {
		return nil
	}
	cfg := s.cfg.Booking
	cfg.BearerToken = id.Token
	return collab.NewBookingClient(cfg, s.log)
}
