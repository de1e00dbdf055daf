package pricing

import (
	"strings"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// FloorHint is the client-side minimum price advice for one booking.  It is
// advisory: the server's floor check is the only gate.
type FloorHint struct {
	Known                 bool  `json:"known"`
	FloorMinor            int64 `json:"floorMinor"`
	MaxAdvisedCreditMinor int64 `json:"maxAdvisedCreditMinor"`
}

// Warns reports whether creditMinor would likely push the price under the
// floor.
func (h FloorHint) Warns(creditMinor int64) bool {
	return h.Known && creditMinor > h.MaxAdvisedCreditMinor
}

// Advisor computes floor hints from a cached floor table.
type Advisor struct {
	floors map[string]int64
}

// NewAdvisor indexes rules by lower-cased modality.  Later rules override
// earlier ones for the same modality.
func NewAdvisor(rules []model.FloorRule) *Advisor {
	a := &Advisor{floors: make(map[string]int64, len(rules))}
	for _, r := range rules {
		if r.MinPriceMinor < 0 {
			continue
		}
		a.floors[strings.ToLower(strings.TrimSpace(r.Modality))] = r.MinPriceMinor
	}
	return a
}

// Hint returns the floor for modality (falling back to the default rule)
// and the largest credit that keeps the payable amount at or above it.
// A nil advisor or a table without a matching rule yields an unknown hint.
func (a *Advisor) Hint(modality string, subtotalMinor, referralMinor int64) FloorHint {
	if a == nil {
		return FloorHint{}
	}
	floor, ok := a.floors[strings.ToLower(strings.TrimSpace(modality))]
	if !ok {
		floor, ok = a.floors[""]
	}
	if !ok {
		return FloorHint{}
	}
	room := subtotalMinor - referralMinor - floor
	if room < 0 {
		room = 0
	}
	return FloorHint{Known: true, FloorMinor: floor, MaxAdvisedCreditMinor: room}
}
