package models

import (
	"time"
)

// ItemState defines the lifecycle state of a queued item.
type ItemState string

const (
	ItemStatePending ItemState = "PENDING"
	ItemStateActive  ItemState = "ACTIVE"
	ItemStateEnded   ItemState = "ENDED"
	ItemStateSettled ItemState = "SETTLED"
)

// Item represents one auctionable product within a session.
//
// ItemID is assigned at add time from the wall clock in Unix milliseconds and
// forced strictly increasing within a session, so it doubles as the queue sort
// key. EndsAt is set only while the item is Active. HighestBid, when present,
// strictly exceeds StartingPrice and every previously accepted bid.
type Item struct {
	ItemID          int64      `json:"item_id"`
	Title           string     `json:"title"`
	StartingPrice   float64    `json:"starting_price"`
	DurationSeconds int        `json:"duration_seconds"`
	SellerID        string     `json:"seller_id"`
	State           ItemState  `json:"state"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	HighestBid      *float64   `json:"highest_bid,omitempty"`
	HighestBidderID string     `json:"highest_bidder_id,omitempty"`
	Bids            []Bid      `json:"bids,omitempty"`
	AddedAt         time.Time  `json:"added_at"`

	// TrackingNumber is the one mutation allowed after Settled, written when
	// the fulfillment side ships the order.
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// HasWinner reports whether the item ended with an accepted bid.
func (it *Item) HasWinner() bool {
	return it.HighestBid != nil && it.HighestBidderID != ""
}

// CurrentFloor is the amount a new bid must strictly exceed.
func (it *Item) CurrentFloor() float64 {
	if it.HighestBid != nil && *it.HighestBid > it.StartingPrice {
		return *it.HighestBid
	}
	return it.StartingPrice
}
