package model

// OrderSummary is the booking record's view of a draft: the authoritative
// base price, fee and referral credit as stored with the booking.
type OrderSummary struct {
	BookingID            string `json:"bookingId"`
	BasePriceMinor       int64  `json:"basePriceMinor"`
	StudentFeeMinor      int64  `json:"studentFeeMinor"`
	ReferralAppliedMinor int64  `json:"referralAppliedMinor"`
	Modality             string `json:"modality"`
}
