package preview

import (
	"errors"
	"fmt"
)

// ErrAborted reports that a negotiation was superseded by a newer one.  It is
// expected traffic under rapid input, not a failure.
var ErrAborted = errors.New("preview: negotiation superseded")

// FloorViolationError is the server rejecting a credit amount because the
// resulting price would fall below its minimum.  Detail is human readable
// and meant to be shown to the user.
type FloorViolationError struct {
	Detail string
}

func (e *FloorViolationError) Error() string {
	return "preview: floor violation: " + e.Detail
}

// TransportError covers network failures, 5xx and any other unexpected
// status.  Status is zero when no response was received.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("preview: transport error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("preview: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
