package models

import (
	"time"
)

// Category classifies a session for the browse pages.
type Category string

const (
	CategoryArt         Category = "Art"
	CategoryElectronics Category = "Electronics"
	CategoryFashion     Category = "Fashion"
	CategoryToys        Category = "Toys"
	CategoryOther       Category = "Other"
)

// Categories lists every valid session category.
var Categories = []Category{
	CategoryArt,
	CategoryElectronics,
	CategoryFashion,
	CategoryToys,
	CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Session represents one broadcaster's live selling event and its product
// queue. The queue is insertion-ordered; that order is also the auto-advance
// order. Version is maintained by the store and guards conditional updates.
type Session struct {
	SessionID string     `json:"session_id"`
	SellerID  string     `json:"seller_id"`
	Title     string     `json:"title"`
	Category  Category   `json:"category"`
	IsLive    bool       `json:"is_live"`
	Queue     []Item     `json:"queue"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Version   int64      `json:"version"`
}

// Clone returns a deep copy of the session. Transitions mutate copies so a
// failed conditional write never leaves a half-applied aggregate behind.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Queue != nil {
		out.Queue = make([]Item, len(s.Queue))
		copy(out.Queue, s.Queue)
		for i := range out.Queue {
			if bids := out.Queue[i].Bids; bids != nil {
				out.Queue[i].Bids = make([]Bid, len(bids))
				copy(out.Queue[i].Bids, bids)
			}
		}
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// Item returns a pointer into the queue for the given item ID, or nil.
func (s *Session) Item(itemID int64) *Item {
	for i := range s.Queue {
		if s.Queue[i].ItemID == itemID {
			return &s.Queue[i]
		}
	}
	return nil
}
