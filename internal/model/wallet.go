package model

import "time"

// WalletBalance is the student's spendable credit as reported by the wallet
// collaborator.  ExpiresAt is nil for credit that never expires.
type WalletBalance struct {
	AvailableMinor int64      `json:"availableMinor"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// SpendableAt returns the balance usable at now.  Expired or negative
// balances count as zero.
func (w WalletBalance) SpendableAt(now time.Time) int64 {
	if w.AvailableMinor <= 0 {
		return 0
	}
	if w.ExpiresAt != nil && !now.Before(*w.ExpiresAt) {
		return 0
	}
	return w.AvailableMinor
}
