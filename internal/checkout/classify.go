package checkout

import (
	"errors"

	"github.com/iliyamo/checkout-credits/internal/preview"
	"github.com/iliyamo/checkout-credits/internal/pricing"
)

// Class is the category of a negotiation outcome.
type Class string

const (
	ClassAccepted       Class = "accepted"
	ClassAborted        Class = "aborted"
	ClassFloorViolation Class = "floor_violation"
	ClassTransport      Class = "transport_error"
	ClassInvariant      Class = "invariant_violation"
)

const retryMessage = "We couldn't update your price. Please try again."

// Classification says what a failed negotiation means for the user.
type Classification struct {
	Class    Class
	Rollback bool
	Notice   *Notice
}

// Classify maps a negotiation error onto rollback behavior.  Aborted
// negotiations have no visible effect.  Floor violations roll back and show
// the server's detail; everything else rolls back with a retry prompt.
// field is the control the notice belongs to.
func Classify(err error, field Field) Classification {
	if err == nil {
		return Classification{Class: ClassAccepted}
	}
	if errors.Is(err, preview.ErrAborted) {
		return Classification{Class: ClassAborted}
	}
	var fv *preview.FloorViolationError
	if errors.As(err, &fv) {
		return Classification{
			Class:    ClassFloorViolation,
			Rollback: true,
			Notice:   &Notice{Kind: NoticeFloorViolation, Field: field, Message: fv.Detail},
		}
	}
	class := ClassTransport
	if errors.Is(err, pricing.ErrInvariantViolation) {
		class = ClassInvariant
	}
	return Classification{
		Class:    class,
		Rollback: true,
		Notice:   &Notice{Kind: NoticeRetry, Field: field, Message: retryMessage},
	}
}
