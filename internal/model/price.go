package model

// LineItem is one informational row of a price breakdown.  Line items are
// rendered as-is and never summed by the client.
type LineItem struct {
	Label       string `json:"label"`
	AmountMinor int64  `json:"amountMinor"`
}

// BookingPriceView is the canonical, UI-facing price snapshot for one
// booking draft.  All amounts are in minor currency units.
//
// Fields:
//	BookingID            – opaque identifier, stable for the draft's lifetime.
//	BasePriceMinor       – lesson/booking price before fees.
//	StudentFeeMinor      – platform fee charged to the student.
//	CreditAppliedMinor   – wallet credit applied to this booking.
//	StudentPayableMinor  – amount charged to the card; never negative.
//	ReferralAppliedMinor – referral credit; mutually exclusive with a promo code.
//	LineItems            – ordered, informational breakdown.
type BookingPriceView struct {
	BookingID            string     `json:"bookingId"`
	BasePriceMinor       int64      `json:"basePriceMinor"`
	StudentFeeMinor      int64      `json:"studentFeeMinor"`
	CreditAppliedMinor   int64      `json:"creditAppliedMinor"`
	StudentPayableMinor  int64      `json:"studentPayableMinor"`
	ReferralAppliedMinor int64      `json:"referralAppliedMinor"`
	LineItems            []LineItem `json:"lineItems"`
}

// SubtotalMinor returns base price plus student fee, the amount due before
// any credit or referral is applied.
func (v BookingPriceView) SubtotalMinor() int64 {
	return v.BasePriceMinor + v.StudentFeeMinor
}

// TotalDueMinor returns the amount that wallet credit can still cover: the
// subtotal minus referral credit, floored at zero.
func (v BookingPriceView) TotalDueMinor() int64 {
	due := v.SubtotalMinor() - v.ReferralAppliedMinor
	if due < 0 {
		return 0
	}
	return due
}

// PricingPreviewResponse is the server's answer to "what would the price be
// if N credit units were applied?".  CreditAppliedMinor echoes the amount
// the server accepted, which may differ from the amount requested.
type PricingPreviewResponse struct {
	BasePriceMinor       int64      `json:"basePriceMinor"`
	StudentFeeMinor      int64      `json:"studentFeeMinor"`
	CreditAppliedMinor   int64      `json:"creditAppliedMinor"`
	StudentPayableMinor  int64      `json:"studentPayableMinor"`
	ReferralAppliedMinor int64      `json:"referralAppliedMinor"`
	LineItems            []LineItem `json:"lineItems"`
}

// ChargeAmounts is what the charge collaborator receives at submit time.
// The payment method label is informational and never billed against.
type ChargeAmounts struct {
	BookingID           string        `json:"bookingId"`
	StudentPayableMinor int64         `json:"studentPayableMinor"`
	CreditAppliedMinor  int64         `json:"creditAppliedMinor"`
	CardRef             string        `json:"cardRef,omitempty"`
	Method              PaymentMethod `json:"paymentMethod"`
}
