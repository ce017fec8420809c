package events

import (
	"time"

	"github.com/mcdev12/streambid/internal/models"
)

// Event payload types shared between the coordinator and the gateway.

// EventType names a domain event on the bus.
type EventType string

const (
	EventTypeSessionWentLive EventType = "SessionWentLive"
	EventTypeSessionEnded    EventType = "SessionEnded"
	EventTypeItemAdded       EventType = "ItemAdded"
	EventTypeAuctionStarted  EventType = "AuctionStarted"
	EventTypeAuctionStopped  EventType = "AuctionStopped"
	EventTypeBidAccepted     EventType = "BidAccepted"
	EventTypeItemSettled     EventType = "ItemSettled"
	EventTypeOrderCreated    EventType = "OrderCreated"
	EventTypeSnapshot        EventType = "Snapshot"
)

// SessionWentLivePayload is the payload for a SessionWentLive event.
type SessionWentLivePayload struct {
	SessionID string    `json:"session_id"`
	SellerID  string    `json:"seller_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	StartedAt time.Time `json:"started_at"`
}

// SessionEndedPayload is the payload for a SessionEnded event.
type SessionEndedPayload struct {
	SessionID string    `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`
}

// ItemAddedPayload is the payload for an ItemAdded event.
type ItemAddedPayload struct {
	SessionID     string    `json:"session_id"`
	ItemID        int64     `json:"item_id"`
	Title         string    `json:"title"`
	StartingPrice float64   `json:"starting_price"`
	AddedAt       time.Time `json:"added_at"`
}

// AuctionStartedPayload is the payload for an AuctionStarted event.
type AuctionStartedPayload struct {
	SessionID       string    `json:"session_id"`
	ItemID          int64     `json:"item_id"`
	Title           string    `json:"title"`
	StartingPrice   float64   `json:"starting_price"`
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndsAt          time.Time `json:"ends_at"`
}

// AuctionStoppedPayload is the payload for an AuctionStopped event. Reason is
// "manual" for a broadcaster stop and "expired" for a clock expiry.
type AuctionStoppedPayload struct {
	SessionID string    `json:"session_id"`
	ItemID    int64     `json:"item_id"`
	Reason    string    `json:"reason"`
	StoppedAt time.Time `json:"stopped_at"`
}

// BidAcceptedPayload is the payload for a BidAccepted event.
type BidAcceptedPayload struct {
	SessionID   string    `json:"session_id"`
	ItemID      int64     `json:"item_id"`
	BidderID    string    `json:"bidder_id"`
	Amount      float64   `json:"amount"`
	PreviousBid float64   `json:"previous_bid"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ItemSettledPayload is the payload for an ItemSettled event. WinnerID is
// empty when the auction ended with no accepted bid.
type ItemSettledPayload struct {
	SessionID  string    `json:"session_id"`
	ItemID     int64     `json:"item_id"`
	Title      string    `json:"title"`
	WinnerID   string    `json:"winner_id,omitempty"`
	FinalPrice float64   `json:"final_price,omitempty"`
	SettledAt  time.Time `json:"settled_at"`
}

// OrderCreatedPayload is the payload for an OrderCreated event.
type OrderCreatedPayload struct {
	OrderID    string    `json:"order_id"`
	SessionID  string    `json:"session_id"`
	ItemID     int64     `json:"item_id"`
	BuyerID    string    `json:"buyer_id"`
	SellerID   string    `json:"seller_id"`
	FinalPrice float64   `json:"final_price"`
	CreatedAt  time.Time `json:"created_at"`
}

// SnapshotPayload carries the full session aggregate after every successful
// command. Observers never rely on deltas for correctness.
type SnapshotPayload struct {
	Session models.Session `json:"session"`
}
