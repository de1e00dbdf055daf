package model

// PaymentMethod classifies how a booking will be paid.  It is derived from
// reconciled totals on every acceptance and is never persisted.
type PaymentMethod string

const (
	PaymentCard        PaymentMethod = "CARD"
	PaymentCreditsOnly PaymentMethod = "CREDITS_ONLY"
	PaymentMixed       PaymentMethod = "MIXED"
)
