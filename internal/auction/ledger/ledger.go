// Package ledger validates and applies bid attempts against a single item.
//
// TryBid is a pure decision function: it performs no I/O, so the coordinator
// can apply it against the aggregate at the moment of commit and retry on
// conflict without re-implementing validation at any call site.
package ledger

import (
	"time"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/models"
)

// TryBid validates a bid against item and, on success, returns a copy of the
// item with the bid recorded. Preconditions are checked in order: the item
// must be accepting bids, the clock must not have expired, and the amount
// must strictly exceed max(highest bid, starting price). A bid equal to the
// current highest is rejected; ties favor the earlier bidder.
func TryBid(item models.Item, bidderID string, amount float64, now time.Time) (models.Item, error) {
	if item.State != models.ItemStateActive {
		return item, &auction.BidRejectedError{Reason: auction.ErrNotActive, Floor: item.CurrentFloor()}
	}
	if item.EndsAt == nil || !now.Before(*item.EndsAt) {
		return item, &auction.BidRejectedError{Reason: auction.ErrAuctionClosed, Floor: item.CurrentFloor()}
	}
	floor := item.CurrentFloor()
	if amount <= floor {
		return item, &auction.BidRejectedError{Reason: auction.ErrTooLow, Floor: floor}
	}

	item.HighestBid = &amount
	item.HighestBidderID = bidderID
	item.Bids = append(item.Bids, models.Bid{
		ItemID:      item.ItemID,
		BidderID:    bidderID,
		Amount:      amount,
		SubmittedAt: now,
	})
	return item, nil
}
