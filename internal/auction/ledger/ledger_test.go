package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/streambid/internal/auction"
	"github.com/mcdev12/streambid/internal/models"
)

func activeItem(startingPrice float64, endsAt time.Time) models.Item {
	return models.Item{
		ItemID:          1717243200000,
		Title:           "Hand-painted koi bowl",
		StartingPrice:   startingPrice,
		DurationSeconds: 30,
		SellerID:        "seller@example.com",
		State:           models.ItemStateActive,
		EndsAt:          &endsAt,
	}
}

func TestTryBid_AcceptsFirstBidAboveStartingPrice(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := activeItem(40, now.Add(30*time.Second))

	updated, err := TryBid(item, "alice@example.com", 45, now)
	if err != nil {
		t.Fatalf("TryBid returned unexpected error: %v", err)
	}
	if updated.HighestBid == nil || *updated.HighestBid != 45 {
		t.Errorf("expected highest bid 45, got %v", updated.HighestBid)
	}
	if updated.HighestBidderID != "alice@example.com" {
		t.Errorf("expected bidder alice@example.com, got %s", updated.HighestBidderID)
	}
}

func TestTryBid_RejectsBidAtOrBelowFloor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := activeItem(40, now.Add(30*time.Second))
	prior := 50.0
	item.HighestBid = &prior
	item.HighestBidderID = "bob@example.com"

	tests := []struct {
		name   string
		amount float64
	}{
		{"below highest", 45},
		{"equal to highest rejects tie", 50},
		{"below starting price", 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := TryBid(item, "carol@example.com", tt.amount, now)
			if !errors.Is(err, auction.ErrTooLow) {
				t.Fatalf("expected ErrTooLow, got %v", err)
			}
			var rej *auction.BidRejectedError
			if !errors.As(err, &rej) {
				t.Fatal("expected a BidRejectedError")
			}
			if rej.Floor != 50 {
				t.Errorf("expected floor 50 in rejection, got %.2f", rej.Floor)
			}
			// Rejection leaves the item untouched.
			if updated.HighestBidderID != "bob@example.com" {
				t.Errorf("rejected bid must not change the bidder, got %s", updated.HighestBidderID)
			}
		})
	}
}

func TestTryBid_RejectsEqualToStartingPriceWithNoBids(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := activeItem(40, now.Add(30*time.Second))

	_, err := TryBid(item, "alice@example.com", 40, now)
	if !errors.Is(err, auction.ErrTooLow) {
		t.Fatalf("expected ErrTooLow for bid equal to starting price, got %v", err)
	}
}

func TestTryBid_RejectsInactiveStates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, state := range []models.ItemState{models.ItemStatePending, models.ItemStateEnded, models.ItemStateSettled} {
		t.Run(string(state), func(t *testing.T) {
			item := activeItem(40, now.Add(30*time.Second))
			item.State = state
			_, err := TryBid(item, "alice@example.com", 100, now)
			if !errors.Is(err, auction.ErrNotActive) {
				t.Fatalf("expected ErrNotActive for state %s, got %v", state, err)
			}
		})
	}
}

func TestTryBid_RejectsAfterClockExpiry(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := activeItem(40, start.Add(30*time.Second))

	// Accepted one second before expiry.
	updated, err := TryBid(item, "alice@example.com", 45, start.Add(29*time.Second))
	if err != nil {
		t.Fatalf("bid at t0+29s should be accepted: %v", err)
	}

	// Rejected at and after the deadline, even while state is still Active.
	if _, err := TryBid(updated, "bob@example.com", 60, start.Add(30*time.Second)); !errors.Is(err, auction.ErrAuctionClosed) {
		t.Fatalf("expected ErrAuctionClosed at the deadline, got %v", err)
	}
	if _, err := TryBid(updated, "bob@example.com", 60, start.Add(32*time.Second)); !errors.Is(err, auction.ErrAuctionClosed) {
		t.Fatalf("expected ErrAuctionClosed after the deadline, got %v", err)
	}
}

func TestTryBid_MissingEndsAtIsClosed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := activeItem(40, now)
	item.EndsAt = nil

	if _, err := TryBid(item, "alice@example.com", 45, now); !errors.Is(err, auction.ErrAuctionClosed) {
		t.Fatalf("expected ErrAuctionClosed when EndsAt is absent, got %v", err)
	}
}

func TestTryBid_EachAcceptedBidStrictlyIncreases(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := activeItem(40, now.Add(time.Minute))

	amounts := []float64{41, 42.5, 60, 61}
	for _, amount := range amounts {
		var err error
		item, err = TryBid(item, "alice@example.com", amount, now)
		if err != nil {
			t.Fatalf("bid %.2f should be accepted: %v", amount, err)
		}
		if *item.HighestBid != amount {
			t.Fatalf("expected highest bid %.2f, got %.2f", amount, *item.HighestBid)
		}
	}

	// Every accepted bid lands in the item's history, in order.
	if len(item.Bids) != len(amounts) {
		t.Fatalf("expected %d recorded bids, got %d", len(amounts), len(item.Bids))
	}
	for i, bid := range item.Bids {
		if bid.Amount != amounts[i] {
			t.Errorf("bid %d amount = %.2f, want %.2f", i, bid.Amount, amounts[i])
		}
	}
}
