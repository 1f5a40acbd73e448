package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog. StockQuantity is mutated
// only through conditional decrements on the checkout path and never
// goes negative.
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// IsLowStock reports whether the product is in stock but at or below
// the given threshold.
func (p *Product) IsLowStock(threshold int) bool {
	return p.StockQuantity > 0 && p.StockQuantity <= threshold
}

// IsOutOfStock reports whether the product has no stock left.
func (p *Product) IsOutOfStock() bool {
	return p.StockQuantity <= 0
}

// CartItem represents not-yet-purchased intent, unique per (user, product).
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine is a cart item joined with its product snapshot.
type CartLine struct {
	CartItem
	Product Product `db:"product" json:"product"`
}

// Subtotal is the advisory line total at the product's current price.
func (l *CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order represents a completed purchase. Orders are immutable once created.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status         string          `db:"status" json:"status"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem captures a purchased line. Price is copied from the product
// at purchase time and is immune to later price changes.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name,omitempty"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
}

// Subtotal is quantity times the snapshot price.
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order statuses. Orders are created completed; lifecycle beyond that is
// out of scope.
const (
	OrderStatusCompleted = "completed"
)

// DailySales is the aggregate handed to the daily report notification.
type DailySales struct {
	Day          time.Time       `json:"day"`
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Products     []ProductSales  `json:"products"`
}

// ProductSales is per-product sales volume grouped by product name.
type ProductSales struct {
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Revenue     decimal.Decimal `db:"revenue" json:"revenue"`
}
