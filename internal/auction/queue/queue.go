// Package queue implements the ordered product queue and the per-item
// lifecycle transitions (Pending -> Active -> Ended -> Settled).
//
// Every function operates on a whole Session aggregate owned by the caller —
// the coordinator clones the stored snapshot, applies one transition, and
// commits it with a conditional write. Nothing here performs I/O.
package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/models"
)

// ItemInput carries the validated fields of an add-item command.
type ItemInput struct {
	Title           string
	StartingPrice   float64
	DurationSeconds int
}

// ParseItemInput validates the raw form fields of an add-item command. Price
// and duration arrive as strings from the dashboard form; a non-numeric or
// non-positive value is rejected as invalid input.
func ParseItemInput(title, price, duration string) (ItemInput, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return ItemInput{}, fmt.Errorf("%w: title is required", auction.ErrInvalidInput)
	}

	p, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
	if err != nil {
		return ItemInput{}, fmt.Errorf("%w: price %q is not numeric", auction.ErrInvalidInput, price)
	}

	d, err := strconv.Atoi(strings.TrimSpace(duration))
	if err != nil {
		return ItemInput{}, fmt.Errorf("%w: duration %q is not numeric", auction.ErrInvalidInput, duration)
	}

	in := ItemInput{Title: title, StartingPrice: p, DurationSeconds: d}
	if err := in.Validate(); err != nil {
		return ItemInput{}, err
	}
	return in, nil
}

// Validate checks the positivity rules on an already-typed input.
func (in ItemInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", auction.ErrInvalidInput)
	}
	if in.StartingPrice <= 0 {
		return fmt.Errorf("%w: starting price must be positive", auction.ErrInvalidInput)
	}
	if in.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", auction.ErrInvalidInput)
	}
	return nil
}

// Append adds a new Pending item to the end of the queue and returns it.
// The item ID comes from the wall clock in Unix milliseconds, bumped past the
// last assigned ID so IDs stay strictly increasing within a session and can
// double as the sort key. Duplicate titles are allowed.
func Append(s *models.Session, in ItemInput, sellerID string, now time.Time) (models.Item, error) {
	if err := in.Validate(); err != nil {
		return models.Item{}, err
	}

	id := now.UnixMilli()
	if n := len(s.Queue); n > 0 && id <= s.Queue[n-1].ItemID {
		id = s.Queue[n-1].ItemID + 1
	}

	item := models.Item{
		ItemID:          id,
		Title:           strings.TrimSpace(in.Title),
		StartingPrice:   in.StartingPrice,
		DurationSeconds: in.DurationSeconds,
		SellerID:        sellerID,
		State:           models.ItemStatePending,
		AddedAt:         now,
	}
	s.Queue = append(s.Queue, item)
	return item, nil
}

// ActiveItem returns the at-most-one Active item, or nil.
func ActiveItem(s *models.Session) *models.Item {
	for i := range s.Queue {
		if s.Queue[i].State == models.ItemStateActive {
			return &s.Queue[i]
		}
	}
	return nil
}

// Next returns the first Pending item after afterItemID in insertion order,
// or nil. afterItemID zero scans from the front of the queue.
func Next(s *models.Session, afterItemID int64) *models.Item {
	for i := range s.Queue {
		if s.Queue[i].ItemID <= afterItemID {
			continue
		}
		if s.Queue[i].State == models.ItemStatePending {
			return &s.Queue[i]
		}
	}
	return nil
}

// StartAuction transitions itemID from Pending to Active, setting its
// deadline to now + duration. Any other Active item is forced to Ended first,
// which keeps the at-most-one-Active invariant. Starting the already-Active
// item is a no-op; starting an Ended or Settled item is invalid — auctions
// are one-shot per item.
func StartAuction(s *models.Session, itemID int64, now time.Time) (*models.Item, error) {
	item := s.Item(itemID)
	if item == nil {
		return nil, fmt.Errorf("%w: item %d", auction.ErrNotFound, itemID)
	}

	switch item.State {
	case models.ItemStateActive:
		return item, nil
	case models.ItemStateEnded, models.ItemStateSettled:
		return nil, fmt.Errorf("%w: item %d already ran its auction", auction.ErrInvalidInput, itemID)
	}

	for i := range s.Queue {
		if s.Queue[i].State == models.ItemStateActive {
			endItem(&s.Queue[i])
		}
	}

	endsAt := now.Add(time.Duration(item.DurationSeconds) * time.Second)
	item.State = models.ItemStateActive
	item.EndsAt = &endsAt
	return item, nil
}

// StopAuction force-ends the Active item. Returns the ended item, or nil when
// nothing was active — a duplicate or late stop is a no-op, not a fault.
func StopAuction(s *models.Session) *models.Item {
	item := ActiveItem(s)
	if item == nil {
		return nil
	}
	endItem(item)
	return item
}

// ExpireDue ends every Active item whose clock has run out and returns their
// IDs. A tick racing a manual stop finds nothing active and returns empty.
func ExpireDue(s *models.Session, now time.Time) []int64 {
	var ended []int64
	for i := range s.Queue {
		it := &s.Queue[i]
		if it.State == models.ItemStateActive && it.EndsAt != nil && !now.Before(*it.EndsAt) {
			endItem(it)
			ended = append(ended, it.ItemID)
		}
	}
	return ended
}

// Settle finalizes an Ended item. The bool reports whether this call
// performed the transition: settling an already-Settled item is a no-op, not
// an error, because the expiry tick may run more than once before state
// propagates. There is no path back to Pending or Active.
func Settle(s *models.Session, itemID int64) (*models.Item, bool, error) {
	item := s.Item(itemID)
	if item == nil {
		return nil, false, fmt.Errorf("%w: item %d", auction.ErrNotFound, itemID)
	}

	switch item.State {
	case models.ItemStateSettled:
		return item, false, nil
	case models.ItemStateEnded:
		item.State = models.ItemStateSettled
		return item, true, nil
	default:
		return nil, false, fmt.Errorf("%w: item %d is %s, not ended", auction.ErrInvalidInput, itemID, item.State)
	}
}

// NextDeadline returns the earliest EndsAt across Active items, or nil when
// no auction is running. The scheduler sleeps until this instant.
func NextDeadline(s *models.Session) *time.Time {
	var next *time.Time
	for i := range s.Queue {
		it := &s.Queue[i]
		if it.State != models.ItemStateActive || it.EndsAt == nil {
			continue
		}
		if next == nil || it.EndsAt.Before(*next) {
			next = it.EndsAt
		}
	}
	return next
}

func endItem(it *models.Item) {
	it.State = models.ItemStateEnded
	it.EndsAt = nil
}
