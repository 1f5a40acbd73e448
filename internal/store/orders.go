package store

import (
	"context"
	"database/sql"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.CodeNotFound, "order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key.
// Returns nil without error when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return orders, err
}

const orderItemColumns = `
	oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price,
	p.name AS product_name`

// GetOrderItemsByOrderID retrieves all items for an order with their
// current product names joined in.
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+orderItemColumns+`
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, orderID)
	return items, err
}

// GetOrderItemsByOrderIDs retrieves items for multiple orders in one query.
func (s *Store) GetOrderItemsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []models.OrderItem{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+orderItemColumns+`
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id IN (?)
		ORDER BY oi.order_id, oi.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	err = s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

// GetDailySales aggregates completed orders created on the given UTC
// day: order count, revenue, and per-product quantities grouped by
// product name.
func (s *Store) GetDailySales(ctx context.Context, day time.Time) (*models.DailySales, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	sales := &models.DailySales{Day: start, TotalRevenue: decimal.Zero}

	var summary struct {
		TotalOrders  int             `db:"total_orders"`
		TotalRevenue decimal.Decimal `db:"total_revenue"`
	}
	err := s.db.GetContext(ctx, &summary, `
		SELECT COUNT(*) AS total_orders,
		       COALESCE(SUM(total_amount), 0) AS total_revenue
		FROM orders
		WHERE created_at >= $1 AND created_at < $2 AND status = $3`,
		start, end, models.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	sales.TotalOrders = summary.TotalOrders
	sales.TotalRevenue = summary.TotalRevenue

	if sales.TotalOrders == 0 {
		return sales, nil
	}

	err = s.db.SelectContext(ctx, &sales.Products, `
		SELECT p.name AS product_name,
		       SUM(oi.quantity) AS quantity,
		       SUM(oi.price * oi.quantity) AS revenue
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.created_at >= $1 AND o.created_at < $2 AND o.status = $3
		GROUP BY p.name
		ORDER BY quantity DESC, product_name`,
		start, end, models.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	return sales, nil
}
