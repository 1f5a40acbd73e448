package service

import (
	"context"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService handles per-user cart mutations. Quantity policy is
// reject: any add or update whose resulting quantity would exceed the
// product's current stock fails with InsufficientStock, checked inside
// the same transaction that writes the cart row.
type CartService struct {
	store     Store
	cache     Cache
	publisher EventPublisher
	threshold int
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store Store, cache Cache, publisher EventPublisher, lowStockThreshold int) *CartService {
	return &CartService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		threshold: lowStockThreshold,
		logger:    util.GetLogger(),
	}
}

// Cart is a cart snapshot with its advisory total at current prices.
// The total is recomputed authoritatively at checkout.
type Cart struct {
	Items []models.CartLine `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

// GetCart returns the user's cart lines with product snapshots and the
// advisory total.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	lines, err := s.store.GetCartLines(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to load cart")
	}

	cart := &Cart{Items: lines, Total: decimal.Zero}
	if cart.Items == nil {
		cart.Items = []models.CartLine{}
	}
	for i := range lines {
		cart.Total = cart.Total.Add(lines[i].Subtotal())
	}
	return cart, nil
}

// AddItem finds-or-creates the (user, product) cart item and increments
// its quantity. The product row is locked for the duration so the stock
// check and the cart write cannot race a checkout.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity < 1 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be a positive integer")
	}

	// The stock mirror short-circuits a doomed add without taking the
	// product row lock. The transaction below remains the authority; a
	// mirror miss or error falls through to it.
	if stock, err := s.cache.GetStock(ctx, productID); err == nil && stock <= 0 {
		util.CartOpsTotal.WithLabelValues("add", "insufficient_stock").Inc()
		return nil, apperr.New(apperr.CodeInsufficientStock, "product %d is out of stock", productID)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to add cart item")
	}
	defer tx.Rollback()

	product, err := tx.ProductForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}

	if product.IsOutOfStock() {
		util.CartOpsTotal.WithLabelValues("add", "insufficient_stock").Inc()
		return nil, apperr.New(apperr.CodeInsufficientStock,
			"insufficient stock for %s", product.Name)
	}

	item, err := tx.UpsertCartItem(ctx, userID, productID, quantity)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to add cart item")
	}

	if item.Quantity > product.StockQuantity {
		util.CartOpsTotal.WithLabelValues("add", "insufficient_stock").Inc()
		return nil, apperr.New(apperr.CodeInsufficientStock,
			"insufficient stock for %s", product.Name)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to add cart item")
	}

	util.CartOpsTotal.WithLabelValues("add", "ok").Inc()
	s.notifyLowStock(ctx, product)

	return &models.CartLine{CartItem: *item, Product: *product}, nil
}

// UpdateItem replaces a cart item's quantity. The caller must own the
// item.
func (s *CartService) UpdateItem(ctx context.Context, userID, cartItemID int64, quantity int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if quantity < 1 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be a positive integer")
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to update cart item")
	}
	defer tx.Rollback()

	item, err := tx.CartItemForUpdate(ctx, cartItemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, apperr.New(apperr.CodeForbidden, "cart item %d does not belong to you", cartItemID)
	}

	product, err := tx.ProductForUpdate(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}

	if quantity > product.StockQuantity {
		util.CartOpsTotal.WithLabelValues("update", "insufficient_stock").Inc()
		return nil, apperr.New(apperr.CodeInsufficientStock,
			"insufficient stock for %s", product.Name)
	}

	item, err = tx.SetCartItemQuantity(ctx, cartItemID, quantity)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to update cart item")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to update cart item")
	}

	util.CartOpsTotal.WithLabelValues("update", "ok").Inc()
	s.notifyLowStock(ctx, product)

	return &models.CartLine{CartItem: *item, Product: *product}, nil
}

// RemoveItem deletes a cart item owned by the caller. Removing a
// nonexistent item reports NotFound.
func (s *CartService) RemoveItem(ctx context.Context, userID, cartItemID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to remove cart item")
	}
	defer tx.Rollback()

	item, err := tx.CartItemForUpdate(ctx, cartItemID)
	if err != nil {
		return err
	}
	if item.UserID != userID {
		return apperr.New(apperr.CodeForbidden, "cart item %d does not belong to you", cartItemID)
	}

	if err := tx.DeleteCartItem(ctx, cartItemID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to remove cart item")
	}

	util.CartOpsTotal.WithLabelValues("remove", "ok").Inc()
	return nil
}

// ClearCart deletes all cart items for the user. Clearing an empty cart
// is a no-op.
func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to clear cart")
	}
	defer tx.Rollback()

	if err := tx.DeleteCartItems(ctx, userID); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to clear cart")
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to clear cart")
	}

	util.CartOpsTotal.WithLabelValues("clear", "ok").Inc()
	return nil
}

// notifyLowStock publishes a low-stock event when the product is at or
// below the threshold. Fires after the mutating transaction commits;
// publish failures are logged, never returned.
func (s *CartService) notifyLowStock(ctx context.Context, product *models.Product) {
	publishLowStock(ctx, s.publisher, s.logger, product, product.StockQuantity, s.threshold)
}

// publishLowStock emits a LowStock event for the given post-mutation
// stock level when it is in (0, threshold]. Shared by cart mutations and
// checkout.
func publishLowStock(ctx context.Context, publisher EventPublisher, logger *zap.Logger, product *models.Product, stock, threshold int) {
	if stock <= 0 || stock > threshold {
		return
	}

	event := &models.LowStockEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeLowStock,
			Timestamp: time.Now(),
		},
		ProductID:     product.ID,
		ProductName:   product.Name,
		StockQuantity: stock,
		Threshold:     threshold,
	}

	if err := publisher.PublishLowStock(ctx, event); err != nil {
		logger.Error("Failed to publish LowStock event",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
		return
	}
	util.LowStockEventsTotal.Inc()
}
