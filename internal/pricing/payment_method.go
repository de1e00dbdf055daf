package pricing

import "github.com/iliyamo/checkout-credits/internal/model"

// SelectPaymentMethod derives the payment method from reconciled totals.
// No credit means CARD; credit that leaves nothing for the card means
// CREDITS_ONLY; anything in between is MIXED.  Without referral credit the
// CREDITS_ONLY test reduces to credit >= base + fee.
func SelectPaymentMethod(v model.BookingPriceView) model.PaymentMethod {
	switch {
	case v.CreditAppliedMinor <= 0:
		return model.PaymentCard
	case v.CreditAppliedMinor >= v.SubtotalMinor() || v.StudentPayableMinor == 0:
		return model.PaymentCreditsOnly
	default:
		return model.PaymentMixed
	}
}
