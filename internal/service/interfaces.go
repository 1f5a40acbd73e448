package service

import (
	"context"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

// Store is the persistence surface the services depend on. *store.Store
// is the production implementation; tests substitute an in-memory fake.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)

	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetCartLines(ctx context.Context, userID int64) ([]models.CartLine, error)

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrderItemsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error)
	GetDailySales(ctx context.Context, day time.Time) (*models.DailySales, error)
}

// EventPublisher emits notification events after mutating transactions
// commit. Publish failures must never fail the triggering request.
type EventPublisher interface {
	PublishLowStock(ctx context.Context, event *models.LowStockEvent) error
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishDailySalesReport(ctx context.Context, event *models.DailySalesReportEvent) error
}

// Cache mirrors committed stock counts and guards duplicate checkouts.
// The database remains the source of truth; cache errors degrade to
// DB-only behavior.
type Cache interface {
	GetStock(ctx context.Context, productID int64) (int, error)
	SetStock(ctx context.Context, productID int64, quantity int) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error

	// AcquireIdempotencyKey reserves a key atomically, returning false
	// when another request already holds it.
	AcquireIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}
