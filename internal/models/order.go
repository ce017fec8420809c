package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus defines the fulfillment status of an order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusShipped OrderStatus = "SHIPPED"
)

// Order is produced exactly once per settled item with a winning bidder. The
// auction core constructs it and hands it to the fulfillment collaborator,
// which owns the shipping and tracking fields from then on.
type Order struct {
	OrderID         uuid.UUID   `json:"order_id"`
	SessionID       string      `json:"session_id"`
	ItemID          int64       `json:"item_id"`
	ItemTitle       string      `json:"item_title"`
	BuyerID         string      `json:"buyer_id"`
	SellerID        string      `json:"seller_id"`
	FinalPrice      float64     `json:"final_price"`
	Status          OrderStatus `json:"status"`
	ShippingAddress string      `json:"shipping_address,omitempty"`
	TrackingNumber  string      `json:"tracking_number,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
