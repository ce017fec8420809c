// Package orders persists the orders produced by settled auctions and the
// checkout state buyers and sellers attach to them afterwards.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/streambid/internal/models"
)

var (
	// ErrOrderNotFound is returned when no order matches the lookup.
	ErrOrderNotFound = errors.New("order not found")

	// ErrNotYours is returned when a caller touches an order they are not a
	// party to.
	ErrNotYours = errors.New("order does not belong to caller")
)

// Repository stores orders in Postgres. The item_id unique constraint makes
// order creation idempotent per settled item, which is what lets settlement
// replay safely.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the orders table when it does not exist yet. Called
// once at startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id               UUID PRIMARY KEY,
			session_id       TEXT NOT NULL,
			item_id          BIGINT NOT NULL UNIQUE,
			item_title       TEXT NOT NULL,
			buyer_id         TEXT NOT NULL,
			seller_id        TEXT NOT NULL,
			final_price      DOUBLE PRECISION NOT NULL,
			status           TEXT NOT NULL,
			shipping_address TEXT NOT NULL DEFAULT '',
			tracking_number  TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure orders schema: %w", err)
	}
	return nil
}

// CreateOrder inserts an order for a settled item. It reports false without
// error when an order for the same item already exists.
func (r *Repository) CreateOrder(ctx context.Context, order models.Order) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO orders (
			id, session_id, item_id, item_title, buyer_id, seller_id,
			final_price, status, shipping_address, tracking_number,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (item_id) DO NOTHING
	`,
		order.OrderID, order.SessionID, order.ItemID, order.ItemTitle,
		order.BuyerID, order.SellerID, order.FinalPrice, string(order.Status),
		order.ShippingAddress, order.TrackingNumber,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetOrder fetches one order by ID.
func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := r.pool.QueryRow(ctx, selectOrder+` WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListByBuyer returns a buyer's orders, newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	return r.list(ctx, `buyer_id`, buyerID)
}

// ListBySeller returns a seller's orders, newest first.
func (r *Repository) ListBySeller(ctx context.Context, sellerID string) ([]models.Order, error) {
	return r.list(ctx, `seller_id`, sellerID)
}

func (r *Repository) list(ctx context.Context, column, party string) ([]models.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrder+` WHERE `+column+` = $1 ORDER BY created_at DESC`, party)
	if err != nil {
		return nil, fmt.Errorf("list orders by %s: %w", column, err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// SetShippingAddress records the buyer's checkout address. Only the buyer on
// the order may set it.
func (r *Repository) SetShippingAddress(ctx context.Context, orderID uuid.UUID, buyerID, address string) (*models.Order, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET shipping_address = $3, updated_at = $4
		WHERE id = $1 AND buyer_id = $2
	`, orderID, buyerID, address, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("set shipping address: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, r.explainMiss(ctx, orderID)
	}
	return r.GetOrder(ctx, orderID)
}

// MarkShipped moves the order to SHIPPED with the seller's tracking number.
// Only the seller on the order may ship it.
func (r *Repository) MarkShipped(ctx context.Context, orderID uuid.UUID, sellerID, trackingNumber string) (*models.Order, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = $3, tracking_number = $4, updated_at = $5
		WHERE id = $1 AND seller_id = $2
	`, orderID, sellerID, string(models.OrderStatusShipped), trackingNumber, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark shipped: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, r.explainMiss(ctx, orderID)
	}
	return r.GetOrder(ctx, orderID)
}

// explainMiss distinguishes a missing order from a caller that is not a
// party to it.
func (r *Repository) explainMiss(ctx context.Context, orderID uuid.UUID) error {
	if _, err := r.GetOrder(ctx, orderID); err != nil {
		return err
	}
	return ErrNotYours
}

const selectOrder = `
	SELECT id, session_id, item_id, item_title, buyer_id, seller_id,
	       final_price, status, shipping_address, tracking_number,
	       created_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var status string
	if err := row.Scan(
		&order.OrderID, &order.SessionID, &order.ItemID, &order.ItemTitle,
		&order.BuyerID, &order.SellerID, &order.FinalPrice, &status,
		&order.ShippingAddress, &order.TrackingNumber,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatus(status)
	return &order, nil
}
