package checkout

import (
	"errors"

	"github.com/iliyamo/checkout-credits/internal/model"
	"github.com/iliyamo/checkout-credits/internal/pricing"
)

const promoBlockedMessage = "Promo codes can't be combined with referral credit."

// Reduce applies ev to s.  It never performs I/O; the returned effects are
// executed by the engine in order.
func Reduce(s State, ev Event) (State, []Effect) {
	if _, ok := ev.(Initialized); !ok && !s.Initialized {
		return s, nil
	}
	switch ev := ev.(type) {
	case Initialized:
		return initialize(s, ev)
	case CreditAmountChanged:
		return changeCredit(s, ev)
	case DebounceElapsed:
		if !s.DebouncePending || ev.Gen != s.DebounceGen {
			return s, nil
		}
		s.DebouncePending = false
		s.DesiredCreditMinor = pricing.ClampCredit(s.DesiredCreditMinor, s.WalletMinor, s.TotalDueMinor())
		return s, []Effect{StartNegotiation{CreditMinor: s.DesiredCreditMinor}}
	case NegotiationIssued:
		s.InFlightID = ev.RequestID
		s.InFlightCredit = ev.CreditMinor
		return s, nil
	case PreviewAccepted:
		return accept(s, ev)
	case PreviewRejected:
		if ev.RequestID == 0 || ev.RequestID != s.InFlightID {
			return s, nil
		}
		s.InFlightID = 0
		return reject(s, ev.RequestID, ev.Err)
	case ReferralApplied:
		next, _ := s.Discounts.ApplyReferral(ev.AmountMinor)
		s.Discounts = next
		s = pricingInput(s, FieldReferral)
		effects := interrupt(&s)
		return s, append(effects, RefreshOrderSummary{}, schedule(&s))
	case PromoActivated:
		next, err := s.Discounts.ActivatePromo(ev.Code)
		if err != nil {
			msg := promoBlockedMessage
			if errors.Is(err, ErrEmptyPromoCode) {
				msg = "Enter a promo code."
			}
			s.Notice = &Notice{Kind: NoticeValidation, Field: FieldPromo, Message: msg}
			return s, nil
		}
		s.Discounts = next
		s = pricingInput(s, FieldPromo)
		effects := interrupt(&s)
		return s, append(effects, schedule(&s))
	case PromoDeactivated:
		if !s.Discounts.PromoActive {
			return s, nil
		}
		s.Discounts = s.Discounts.DeactivatePromo()
		s = pricingInput(s, FieldPromo)
		effects := interrupt(&s)
		return s, append(effects, schedule(&s))
	case ModalityChanged:
		if ev.Modality == s.Modality {
			return s, nil
		}
		s.Modality = ev.Modality
		s = pricingInput(s, FieldModality)
		effects := interrupt(&s)
		return s, append(effects, schedule(&s))
	case NoticeDismissed:
		s.Notice = nil
		return s, nil
	case OrderSummaryRefreshed:
		return refreshSummary(s, ev.Summary)
	}
	return s, nil
}

// refreshSummary folds the booking record's totals into the state.  Its
// referral amount replaces the locally applied one.  Base price and fee only
// replace an estimate; an accepted view changes through negotiation alone.
// Any difference renegotiates.
func refreshSummary(s State, sum model.OrderSummary) (State, []Effect) {
	if sum.BookingID != "" && sum.BookingID != s.BookingID {
		return s, nil
	}
	changed := false
	if sum.ReferralAppliedMinor != s.Discounts.ReferralAppliedMinor {
		s.Discounts, _ = s.Discounts.ApplyReferral(sum.ReferralAppliedMinor)
		changed = true
	}
	if sum.BasePriceMinor > 0 && (sum.BasePriceMinor != s.View.BasePriceMinor || sum.StudentFeeMinor != s.View.StudentFeeMinor) {
		if s.Estimated {
			s.View = estimateFrom(s.BookingID, sum.BasePriceMinor, sum.StudentFeeMinor)
			s.Method = pricing.SelectPaymentMethod(s.View)
		}
		changed = true
	}
	if !changed {
		return s, nil
	}
	s.DesiredCreditMinor = pricing.ClampCredit(s.DesiredCreditMinor, s.MaxCreditMinor(), s.MaxCreditMinor())
	effects := interrupt(&s)
	return s, append(effects, schedule(&s))
}

// estimateFrom is the first-render view for a known base price and fee.
func estimateFrom(bookingID string, baseMinor, feeMinor int64) model.BookingPriceView {
	view := pricing.Estimate(bookingID, baseMinor, 0)
	view.StudentFeeMinor = feeMinor
	view.StudentPayableMinor = baseMinor + feeMinor
	view.LineItems[1] = model.LineItem{Label: "Service fee", AmountMinor: feeMinor}
	return view
}

func initialize(s State, ev Initialized) (State, []Effect) {
	if s.Initialized {
		return s, nil
	}
	view := pricing.Estimate(ev.BookingID, ev.BasePriceMinor, ev.FeeBasisPoints)
	if ev.StudentFeeMinor > 0 {
		view = estimateFrom(ev.BookingID, view.BasePriceMinor, ev.StudentFeeMinor)
	}
	s = State{
		BookingID:   ev.BookingID,
		Initialized: true,
		WalletMinor: ev.WalletMinor,
		Modality:    ev.Modality,
		View:        view,
		Estimated:   true,
		Method:      pricing.SelectPaymentMethod(view),
		LastInput:   FieldCredits,
	}
	limit := s.MaxCreditMinor()
	switch {
	case ev.Restored != nil && ev.Restored.ExplicitlyRemoved:
		s.DesiredCreditMinor = 0
		s.ExplicitRemoval = true
		s.AcceptedExplicitRemoval = true
	case ev.Restored != nil:
		s.DesiredCreditMinor = pricing.ClampCredit(ev.Restored.LastCreditMinor, limit, limit)
	case ev.WalletMinor > 0:
		s.DesiredCreditMinor = limit
	}
	return s, []Effect{StartNegotiation{CreditMinor: s.DesiredCreditMinor}}
}

func changeCredit(s State, ev CreditAmountChanged) (State, []Effect) {
	amount := ev.AmountMinor
	switch ev.Source {
	case SourceToggleOff:
		amount = 0
		s.ExplicitRemoval = true
	case SourceToggleOn:
		amount = s.DesiredCreditMinor
		if amount == 0 {
			amount = s.MaxCreditMinor()
		}
		s.ExplicitRemoval = false
	default:
		if amount > 0 {
			s.ExplicitRemoval = false
		}
	}
	limit := s.MaxCreditMinor()
	s.DesiredCreditMinor = pricing.ClampCredit(amount, limit, limit)
	s = pricingInput(s, FieldCredits)
	effects := interrupt(&s)
	return s, append(effects, schedule(&s))
}

func accept(s State, ev PreviewAccepted) (State, []Effect) {
	if ev.RequestID == 0 || ev.RequestID != s.InFlightID {
		return s, nil
	}
	s.InFlightID = 0
	view, err := pricing.Accept(s.View, ev.Response, s.WalletMinor)
	if err != nil {
		return reject(s, ev.RequestID, err)
	}
	credit := ev.Response.CreditAppliedMinor
	decision := model.CreditDecision{
		LastCreditMinor:   credit,
		ExplicitlyRemoved: credit == 0 && s.ExplicitRemoval,
	}
	s.View = view
	s.Estimated = false
	s.HasAccepted = true
	s.Method = pricing.SelectPaymentMethod(view)
	s.DesiredCreditMinor = credit
	s.LastAcceptedCreditMinor = credit
	s.ExplicitRemoval = decision.ExplicitlyRemoved
	s.AcceptedExplicitRemoval = decision.ExplicitlyRemoved
	return s, []Effect{
		PersistDecision{Decision: decision},
		PublishAccepted{RequestID: ev.RequestID, Decision: decision, View: view, Method: s.Method},
		ReportOutcome{RequestID: ev.RequestID, Class: ClassAccepted},
	}
}

func reject(s State, requestID uint64, err error) (State, []Effect) {
	c := Classify(err, s.LastInput)
	report := ReportOutcome{RequestID: requestID, Class: c.Class, Err: err}
	if !c.Rollback {
		return s, []Effect{report}
	}
	s.DesiredCreditMinor = s.LastAcceptedCreditMinor
	s.ExplicitRemoval = s.AcceptedExplicitRemoval
	s.Notice = c.Notice
	return s, []Effect{report}
}

// pricingInput clears the notice and remembers which control changed last.
func pricingInput(s State, f Field) State {
	s.Notice = nil
	s.LastInput = f
	return s
}

// interrupt supersedes the in-flight negotiation: newer input makes its
// answer irrelevant.
func interrupt(s *State) []Effect {
	if s.InFlightID == 0 {
		return nil
	}
	s.InFlightID = 0
	return []Effect{CancelNegotiation{}}
}

func schedule(s *State) Effect {
	s.DebouncePending = true
	s.DebounceGen++
	return ScheduleDebounce{Gen: s.DebounceGen}
}
