// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// CreditsAcceptedQueue carries one message per accepted price negotiation.
const CreditsAcceptedQueue = "checkout.credits.accepted"

// CreditDecisionAcceptedEvent is published whenever the server accepts a
// credit amount for a booking draft.  It carries the authoritative amounts
// so audit consumers never need to ask the pricing service again.
type CreditDecisionAcceptedEvent struct {
	BookingID            string `json:"booking_id"`
	UserID               string `json:"user_id"`
	RequestID            uint64 `json:"request_id"`
	CreditAppliedMinor   int64  `json:"credit_applied_minor"`
	StudentPayableMinor  int64  `json:"student_payable_minor"`
	ReferralAppliedMinor int64  `json:"referral_applied_minor"`
	ExplicitlyRemoved    bool   `json:"explicitly_removed"`
	PaymentMethod        string `json:"payment_method"`
	AcceptedAt           string `json:"accepted_at"`
}
