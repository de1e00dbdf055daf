package model

// CreditDecision is the per-booking record of what the user last chose for
// wallet credit.  It is written only after a negotiation is accepted (or the
// user explicitly removes credit) and survives page reloads within one
// session.
//
// Fields:
//	LastCreditMinor   – credit amount the server last accepted.
//	ExplicitlyRemoved – true when the user turned credit off, as opposed to
//	                    never having decided.
type CreditDecision struct {
	LastCreditMinor   int64 `json:"lastCreditMinor"`
	ExplicitlyRemoved bool  `json:"explicitlyRemoved"`
}
