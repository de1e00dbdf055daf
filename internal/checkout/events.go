package checkout

import "github.com/iliyamo/checkout-credits/internal/model"

// Event is an input to Reduce.
type Event interface{ isEvent() }

// CreditSource distinguishes the ways the user can change the credit amount.
type CreditSource int

const (
	SourceSlider CreditSource = iota
	SourceToggleOff
	SourceToggleOn
)

// Initialized starts the draft.  Restored is the persisted decision read
// once from the store, or nil.  When StudentFeeMinor is zero the fee is
// estimated from FeeBasisPoints.
type Initialized struct {
	BookingID       string
	WalletMinor     int64
	BasePriceMinor  int64
	StudentFeeMinor int64
	FeeBasisPoints  int64
	Modality        string
	Restored        *model.CreditDecision
}

type CreditAmountChanged struct {
	AmountMinor int64
	Source      CreditSource
}

// DebounceElapsed fires when the quiet period of generation Gen ends.
type DebounceElapsed struct{ Gen uint64 }

// NegotiationIssued records the request id handed out for a negotiation.
type NegotiationIssued struct {
	RequestID   uint64
	CreditMinor int64
}

type PreviewAccepted struct {
	RequestID uint64
	Response  model.PricingPreviewResponse
}

type PreviewRejected struct {
	RequestID uint64
	Err       error
}

// ReferralApplied is the referral widget's onApplied signal.
type ReferralApplied struct{ AmountMinor int64 }

type PromoActivated struct{ Code string }

type PromoDeactivated struct{}

type ModalityChanged struct{ Modality string }

type NoticeDismissed struct{}

// OrderSummaryRefreshed carries the booking record's totals fetched after a
// referral was applied.
type OrderSummaryRefreshed struct{ Summary model.OrderSummary }

func (Initialized) isEvent()           {}
func (CreditAmountChanged) isEvent()   {}
func (DebounceElapsed) isEvent()       {}
func (NegotiationIssued) isEvent()     {}
func (PreviewAccepted) isEvent()       {}
func (PreviewRejected) isEvent()       {}
func (ReferralApplied) isEvent()       {}
func (PromoActivated) isEvent()        {}
func (PromoDeactivated) isEvent()      {}
func (ModalityChanged) isEvent()       {}
func (NoticeDismissed) isEvent()       {}
func (OrderSummaryRefreshed) isEvent() {}

// Effect is work Reduce asks the engine to perform.
type Effect interface{ isEffect() }

// ScheduleDebounce restarts the quiet-period timer for generation Gen.
type ScheduleDebounce struct{ Gen uint64 }

// CancelNegotiation supersedes the in-flight negotiation.
type CancelNegotiation struct{}

type StartNegotiation struct{ CreditMinor int64 }

type PersistDecision struct{ Decision model.CreditDecision }

// PublishAccepted announces an accepted negotiation.
type PublishAccepted struct {
	RequestID uint64
	Decision  model.CreditDecision
	View      model.BookingPriceView
	Method    model.PaymentMethod
}

// RefreshOrderSummary asks the booking-record collaborator for fresh totals.
type RefreshOrderSummary struct{}

// ReportOutcome carries a negotiation result to logging and metrics.
type ReportOutcome struct {
	RequestID uint64
	Class     Class
	Err       error
}

func (ScheduleDebounce) isEffect()    {}
func (CancelNegotiation) isEffect()   {}
func (StartNegotiation) isEffect()    {}
func (PersistDecision) isEffect()     {}
func (PublishAccepted) isEffect()     {}
func (RefreshOrderSummary) isEffect() {}
func (ReportOutcome) isEffect()       {}
