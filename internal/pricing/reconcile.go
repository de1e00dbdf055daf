// Package pricing holds the pure price computations of the checkout engine:
// merging authoritative preview responses into the price view, the local
// first-render estimate, payment method derivation and the floor advisor.
// Nothing here performs I/O.
package pricing

import (
	"errors"
	"fmt"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// ErrInvariantViolation is returned by Accept when a preview response would
// produce an inconsistent price view.  Callers must keep the previous view.
var ErrInvariantViolation = errors.New("pricing: preview response violates price invariant")

// Accept merges an accepted preview response into the price view.  The
// server is authoritative: base, fee, credit, referral, payable and line
// items are copied verbatim and never recomputed locally.  walletMinor is
// the wallet balance known when the negotiation was issued.  Accepting the
// same response twice yields an identical view.
func Accept(view model.BookingPriceView, resp model.PricingPreviewResponse, walletMinor int64) (model.BookingPriceView, error) {
	if err := checkResponse(resp, walletMinor); err != nil {
		return view, err
	}
	next := model.BookingPriceView{
		BookingID:            view.BookingID,
		BasePriceMinor:       resp.BasePriceMinor,
		StudentFeeMinor:      resp.StudentFeeMinor,
		CreditAppliedMinor:   resp.CreditAppliedMinor,
		StudentPayableMinor:  resp.StudentPayableMinor,
		ReferralAppliedMinor: resp.ReferralAppliedMinor,
	}
	if len(resp.LineItems) > 0 {
		next.LineItems = make([]model.LineItem, len(resp.LineItems))
		copy(next.LineItems, resp.LineItems)
	}
	return next, nil
}

func checkResponse(resp model.PricingPreviewResponse, walletMinor int64) error {
	switch {
	case resp.BasePriceMinor < 0, resp.StudentFeeMinor < 0, resp.CreditAppliedMinor < 0,
		resp.StudentPayableMinor < 0, resp.ReferralAppliedMinor < 0:
		return fmt.Errorf("%w: negative amount", ErrInvariantViolation)
	}
	// Credit may only cover what is still due once referral credit is taken off.
	due := model.BookingPriceView{
		BasePriceMinor:       resp.BasePriceMinor,
		StudentFeeMinor:      resp.StudentFeeMinor,
		ReferralAppliedMinor: resp.ReferralAppliedMinor,
	}.TotalDueMinor()
	if resp.CreditAppliedMinor > due {
		return fmt.Errorf("%w: credit %d exceeds amount due %d", ErrInvariantViolation, resp.CreditAppliedMinor, due)
	}
	if resp.CreditAppliedMinor > walletMinor {
		return fmt.Errorf("%w: credit %d exceeds wallet %d", ErrInvariantViolation, resp.CreditAppliedMinor, walletMinor)
	}
	if want := due - resp.CreditAppliedMinor; resp.StudentPayableMinor != want {
		return fmt.Errorf("%w: payable %d, expected %d", ErrInvariantViolation, resp.StudentPayableMinor, want)
	}
	return nil
}

// Estimate builds the best-effort view shown before the first negotiation
// completes.  The fee is derived from a cached fee rate in basis points and
// rounded half up.  No credit is assumed.
func Estimate(bookingID string, basePriceMinor, feeBasisPoints int64) model.BookingPriceView {
	if basePriceMinor < 0 {
		basePriceMinor = 0
	}
	fee := int64(0)
	if feeBasisPoints > 0 {
		fee = (basePriceMinor*feeBasisPoints + 5000) / 10000
	}
	return model.BookingPriceView{
		BookingID:           bookingID,
		BasePriceMinor:      basePriceMinor,
		StudentFeeMinor:     fee,
		StudentPayableMinor: basePriceMinor + fee,
		LineItems: []model.LineItem{
			{Label: "Lesson", AmountMinor: basePriceMinor},
			{Label: "Service fee (estimated)", AmountMinor: fee},
		},
	}
}

// ClampCredit bounds amount to [0, min(wallet, due)].
func ClampCredit(amount, walletMinor, dueMinor int64) int64 {
	limit := walletMinor
	if dueMinor < limit {
		limit = dueMinor
	}
	if limit < 0 {
		limit = 0
	}
	if amount < 0 {
		return 0
	}
	if amount > limit {
		return limit
	}
	return amount
}
