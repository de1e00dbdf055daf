// Package checkout is the pricing and credit-reconciliation engine behind
// the checkout page.  It keeps the displayed price, the applied credit, the
// payment method and the referral/promo choice consistent with an
// authoritative price that the server computes asynchronously.
//
// State changes go through Reduce, a pure (state, event) -> (state, effects)
// function.  Engine owns one State per booking draft, serializes events and
// runs the effects: debounce timers, fenced negotiations, persistence.
package checkout

import (
	"errors"

	"github.com/iliyamo/checkout-credits/internal/model"
	"github.com/iliyamo/checkout-credits/internal/pricing"
)

var (
	// ErrMissingBookingID prevents an engine from starting without an identity.
	ErrMissingBookingID   = errors.New("checkout: booking id is required")
	ErrAlreadyInitialized = errors.New("checkout: engine already initialized")
	ErrNotInitialized     = errors.New("checkout: engine not initialized")
	ErrPromoBlocked       = errors.New("checkout: promo code cannot be combined with referral credit")
	ErrEmptyPromoCode     = errors.New("checkout: promo code is empty")
	ErrPriceNotConfirmed  = errors.New("checkout: price is not confirmed yet")
	ErrClosed             = errors.New("checkout: engine closed")
)

// NoticeKind tells the UI how to present a notice.
type NoticeKind string

const (
	NoticeFloorViolation NoticeKind = "floor_violation"
	NoticeRetry          NoticeKind = "retry"
	NoticeValidation     NoticeKind = "validation"
)

// Field is the control a notice is rendered next to.
type Field string

const (
	FieldCredits  Field = "credits"
	FieldReferral Field = "referral"
	FieldPromo    Field = "promo"
	FieldModality Field = "modality"
)

// Notice is a transient, dismissible inline message.  It is cleared by the
// next pricing-affecting input.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Field   Field      `json:"field"`
	Message string     `json:"message"`
}

// State is everything the engine knows about one booking draft.
type State struct {
	BookingID   string
	Initialized bool
	WalletMinor int64
	Modality    string

	// View is the last accepted price, or the local estimate while
	// Estimated is true.  It is only replaced by an accepted negotiation.
	View        model.BookingPriceView
	Estimated   bool
	HasAccepted bool
	Method      model.PaymentMethod

	// DesiredCreditMinor is what the user asked for; it may be ahead of
	// the server.  LastAcceptedCreditMinor is what the server last agreed to
	// and is the rollback target.
	DesiredCreditMinor      int64
	LastAcceptedCreditMinor int64

	// ExplicitRemoval records a toggle-off that has not been superseded by
	// a toggle-on or a non-zero amount.  AcceptedExplicitRemoval is its
	// value as of the last accepted negotiation.
	ExplicitRemoval         bool
	AcceptedExplicitRemoval bool

	Discounts Discounts
	Notice    *Notice
	LastInput Field

	DebouncePending bool
	DebounceGen     uint64
	InFlightID      uint64
	InFlightCredit  int64
}

// Pending reports whether a newer price may still arrive.
func (s State) Pending() bool {
	return s.DebouncePending || s.InFlightID != 0
}

// TotalDueMinor is what credit can still cover, using the referral the
// user applied even before the server has priced it.
func (s State) TotalDueMinor() int64 {
	v := s.View
	v.ReferralAppliedMinor = s.Discounts.ReferralAppliedMinor
	return v.TotalDueMinor()
}

// MaxCreditMinor is the upper bound for the credit slider:
// min(wallet, amount due after referral).
func (s State) MaxCreditMinor() int64 {
	return pricing.ClampCredit(s.WalletMinor, s.WalletMinor, s.TotalDueMinor())
}
