// Package decision persists the user's last credit decision per booking
// draft.  Records are scoped to a browsing session: the Redis store expires
// them with the session TTL and the memory store lives as long as the
// process.  Persistence is an optimization; callers ignore its failures.
package decision

import (
	"context"
	"errors"

	"github.com/iliyamo/checkout-credits/internal/model"
)

// ErrCorrupt is returned by Load when a stored record cannot be decoded.
var ErrCorrupt = errors.New("decision: stored record is corrupt")

// Store reads and writes CreditDecision records keyed by booking id.  Load
// returns nil and no error when nothing is stored.
type Store interface {
	Load(ctx context.Context, bookingID string) (*model.CreditDecision, error)
	Save(ctx context.Context, bookingID string, d model.CreditDecision) error
	Clear(ctx context.Context, bookingID string) error
}

// Key builds the storage key for a booking: "<namespace>:credits:last:<bookingId>".
func Key(namespace, bookingID string) string {
	return namespace + ":credits:last:" + bookingID
}
