package checkout

import "strings"

// Discounts coordinates the two discount channels.  Referral credit and a
// promo code are never active together: a promo is refused while referral
// credit is applied, and applying referral credit switches an active promo
// off and clears its input.
type Discounts struct {
	ReferralAppliedMinor int64
	PromoActive          bool
	PromoCode            string
}

// ActivatePromo turns the promo code on, or refuses with ErrPromoBlocked
// while referral credit is applied.
func (d Discounts) ActivatePromo(code string) (Discounts, error) {
	code = strings.TrimSpace(code)
	if d.ReferralAppliedMinor > 0 {
		return d, ErrPromoBlocked
	}
	if code == "" {
		return d, ErrEmptyPromoCode
	}
	d.PromoActive = true
	d.PromoCode = code
	return d, nil
}

func (d Discounts) DeactivatePromo() Discounts {
	d.PromoActive = false
	d.PromoCode = ""
	return d
}

// ApplyReferral records the referral amount.  forcedOff is true when an
// active promo had to be switched off.
func (d Discounts) ApplyReferral(amountMinor int64) (next Discounts, forcedOff bool) {
	if amountMinor < 0 {
		amountMinor = 0
	}
	d.ReferralAppliedMinor = amountMinor
	if amountMinor > 0 && d.PromoActive {
		return d.DeactivatePromo(), true
	}
	return d, false
}

// ActivePromoCode returns the code to send with a negotiation, if any.
func (d Discounts) ActivePromoCode() string {
	if !d.PromoActive {
		return ""
	}
	return d.PromoCode
}
