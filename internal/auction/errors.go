// Package auction holds the error vocabulary shared by the auction engine
// packages. Every failure in the engine is either a rejected command or a
// retryable conflict; none are fatal to the coordinator.
package auction

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive rejects a bid against an item that is not accepting bids.
	ErrNotActive = errors.New("item is not active")

	// ErrAuctionClosed rejects a bid that arrived after the clock expired.
	ErrAuctionClosed = errors.New("auction closed")

	// ErrTooLow rejects a bid that does not strictly exceed the current floor.
	ErrTooLow = errors.New("bid too low")

	// ErrInvalidInput rejects a malformed command (missing title, non-positive
	// price or duration, unknown category). The caller corrects and resubmits.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound reports an unknown session or item.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is surfaced after the coordinator exhausts its conflict
	// retries or the store is unreachable. Nothing was partially written.
	ErrUnavailable = errors.New("unavailable")
)

// BidRejectedError wraps a bid rejection with the floor the bid had to beat,
// so callers can tell the viewer what to resubmit above.
type BidRejectedError struct {
	Reason error
	Floor  float64
}

func (e *BidRejectedError) Error() string {
	return fmt.Sprintf("%v (current floor %.2f)", e.Reason, e.Floor)
}

func (e *BidRejectedError) Unwrap() error {
	return e.Reason
}

// Reason maps an engine error to its short wire code, used by both the HTTP
// and WebSocket surfaces.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTooLow):
		return "too_low"
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrNotActive):
		return "not_active"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
