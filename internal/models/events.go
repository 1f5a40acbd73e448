package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeLowStock         = "LOW_STOCK"
	EventTypeOrderPlaced      = "ORDER_PLACED"
	EventTypeDailySalesReport = "DAILY_SALES_REPORT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// LowStockEvent published when a cart mutation or checkout leaves a
// product at or below the low-stock threshold
type LowStockEvent struct {
	BaseEvent
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	StockQuantity int    `json:"stock_quantity"`
	Threshold     int    `json:"threshold"`
}

// OrderPlacedEvent published after an order transaction commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// DailySalesReportEvent published by the daily report job
type DailySalesReportEvent struct {
	BaseEvent
	Recipient    string          `json:"recipient"`
	Day          string          `json:"day"`
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Products     []ProductSales  `json:"products"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}
