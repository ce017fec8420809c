// Package settlement turns a settled item into an order for the fulfillment
// collaborator.
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/streambid/internal/models"
)

// OrderSink is the fulfillment collaborator. CreateOrder must deduplicate on
// item: it reports false without error when an order for the item already
// exists, which makes settlement safe to replay.
type OrderSink interface {
	CreateOrder(ctx context.Context, order models.Order) (bool, error)
}

// Build constructs the order record for a settled item. It returns false when
// the auction ended without a winning bidder — no order is produced. Pure
// construction; persistence belongs to the OrderSink.
func Build(sessionID string, item models.Item, now time.Time) (models.Order, bool) {
	if !item.HasWinner() {
		return models.Order{}, false
	}

	return models.Order{
		OrderID:    uuid.New(),
		SessionID:  sessionID,
		ItemID:     item.ItemID,
		ItemTitle:  item.Title,
		BuyerID:    item.HighestBidderID,
		SellerID:   item.SellerID,
		FinalPrice: *item.HighestBid,
		Status:     models.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, true
}
