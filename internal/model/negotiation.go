package model

import "context"

// NegotiationRequest is one in-flight preview negotiation.  RequestID is
// monotonic per engine instance; only the request holding the latest id may
// change the price view.  Cancel releases the underlying transport and is
// safe to call at any time, including after completion.
type NegotiationRequest struct {
	RequestID            uint64             `json:"requestId"`
	BookingID            string             `json:"bookingId"`
	RequestedCreditMinor int64              `json:"requestedCreditMinor"`
	Modality             string             `json:"modality,omitempty"`
	PromoCode            string             `json:"promoCode,omitempty"`
	Cancel               context.CancelFunc `json:"-"`
}
