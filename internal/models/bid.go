package models

import (
	"time"
)

// Bid is one attempt to raise an item's highest bid. Bids are not persisted
// as first-class rows; every accepted bid is recorded on the item and emitted
// as an ordered domain event.
type Bid struct {
	ItemID      int64     `json:"item_id"`
	BidderID    string    `json:"bidder_id"`
	Amount      float64   `json:"amount"`
	SubmittedAt time.Time `json:"submitted_at"`
}
