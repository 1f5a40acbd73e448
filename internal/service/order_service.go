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

const idempotencyKeyTTL = 24 * time.Hour

// OrderService converts carts into orders. PlaceOrder is the critical
// path: stock validation, order creation, conditional stock decrement
// and cart clearing share one transaction, so no partial state is ever
// observable and stock never goes negative under concurrent checkouts.
type OrderService struct {
	store     Store
	cache     Cache
	publisher EventPublisher
	threshold int
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store Store, cache Cache, publisher EventPublisher, lowStockThreshold int) *OrderService {
	return &OrderService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		threshold: lowStockThreshold,
		logger:    util.GetLogger(),
	}
}

// PlaceOrder atomically converts the user's cart into a completed order.
// An optional idempotency key makes replays return the original order
// instead of creating a duplicate.
func (s *OrderService) PlaceOrder(ctx context.Context, userID int64, idempotencyKey string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	heldGuard := false
	if idempotencyKey != "" {
		if existing, err := s.findExistingOrder(ctx, userID, idempotencyKey); err != nil || existing != nil {
			return existing, err
		}
		held, existing, err := s.guardIdempotencyKey(ctx, userID, idempotencyKey)
		if err != nil || existing != nil {
			return existing, err
		}
		heldGuard = held
	}

	order, lines, err := s.placeOrderTx(ctx, userID, idempotencyKey)
	if err != nil {
		if heldGuard {
			s.releaseGuard(ctx, idempotencyKey)
		}
		if apperr.IsBusiness(err) {
			util.OrdersFailedTotal.WithLabelValues(string(apperr.GetCode(err))).Inc()
			return nil, err
		}
		util.OrdersFailedTotal.WithLabelValues("internal").Inc()
		s.logger.Error("Order placement failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to place order")
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))

	s.afterCommit(ctx, order, lines)
	return order, nil
}

// guardIdempotencyKey reserves the key before the transaction opens so
// a concurrent request with the same key cannot drain the cart and hand
// the loser an EmptyCart. When the key is already held, the order it
// produced (if committed) is returned; an in-flight duplicate is
// rejected. A guard outage degrades to the database unique index.
func (s *OrderService) guardIdempotencyKey(ctx context.Context, userID int64, key string) (bool, *models.Order, error) {
	acquired, err := s.cache.AcquireIdempotencyKey(ctx, key, idempotencyKeyTTL)
	if err != nil {
		s.logger.Warn("Idempotency guard unavailable",
			zap.String("key", key),
			zap.Error(err))
		return false, nil, nil
	}
	if acquired {
		return true, nil, nil
	}

	existing, err := s.findExistingOrder(ctx, userID, key)
	if err != nil || existing != nil {
		return false, existing, err
	}
	return false, nil, apperr.New(apperr.CodeConflict,
		"an order with this idempotency key is already in progress")
}

func (s *OrderService) releaseGuard(ctx context.Context, key string) {
	if err := s.cache.ReleaseIdempotencyKey(ctx, key); err != nil {
		s.logger.Warn("Failed to release idempotency key",
			zap.String("key", key),
			zap.Error(err))
	}
}

// placeOrderTx runs the commit sequence. Product rows stay locked from
// the precondition check until commit, so validated stock cannot shrink
// underneath the decrement.
func (s *OrderService) placeOrderTx(ctx context.Context, userID int64, idempotencyKey string) (*models.Order, []models.CartLine, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	lines, err := tx.CartLinesForUpdate(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(lines) == 0 {
		return nil, nil, apperr.New(apperr.CodeEmptyCart, "your cart is empty")
	}

	// Fail fast on the first item short on stock.
	for i := range lines {
		if lines[i].Quantity > lines[i].Product.StockQuantity {
			return nil, nil, apperr.New(apperr.CodeInsufficientStock,
				"insufficient stock for %s", lines[i].Product.Name)
		}
	}

	order := &models.Order{
		UserID:         userID,
		TotalAmount:    cartTotal(lines),
		Status:         models.OrderStatusCompleted,
		IdempotencyKey: idempotencyKey,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, nil, err
	}

	order.Items = make([]models.OrderItem, 0, len(lines))
	for i := range lines {
		line := &lines[i]
		item := models.OrderItem{
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.Product.Name,
			Quantity:    line.Quantity,
			Price:       line.Product.Price,
		}
		if err := tx.InsertOrderItem(ctx, &item); err != nil {
			return nil, nil, err
		}

		if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			if apperr.IsCode(err, apperr.CodeInsufficientStock) {
				util.StockDecrementConflicts.Inc()
				return nil, nil, apperr.New(apperr.CodeInsufficientStock,
					"insufficient stock for %s", line.Product.Name)
			}
			return nil, nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := tx.DeleteCartItems(ctx, userID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return order, lines, nil
}

// afterCommit handles the best-effort side effects: stock cache mirror,
// low-stock triggers and the OrderPlaced event. None of these can fail
// the already-committed order.
func (s *OrderService) afterCommit(ctx context.Context, order *models.Order, lines []models.CartLine) {
	for i := range lines {
		line := &lines[i]
		remaining := line.Product.StockQuantity - line.Quantity

		if err := s.cache.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Warn("Failed to mirror stock to cache",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
		}

		publishLowStock(ctx, s.publisher, s.logger, &line.Product, remaining, s.threshold)
	}

	items := make([]models.OrderItemData, 0, len(order.Items))
	for i := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID:   order.Items[i].ProductID,
			ProductName: order.Items[i].ProductName,
			Quantity:    order.Items[i].Quantity,
			Price:       order.Items[i].Price,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

// findExistingOrder returns the order previously created with the same
// idempotency key, with items attached.
func (s *OrderService) findExistingOrder(ctx context.Context, userID int64, key string) (*models.Order, error) {
	existing, err := s.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to check idempotency")
	}
	if existing == nil {
		return nil, nil
	}
	if existing.UserID != userID {
		return nil, apperr.New(apperr.CodeConflict, "idempotency key already used")
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, existing.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to load order items")
	}
	existing.Items = items

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))
	return existing, nil
}

// ListOrders returns the user's orders newest first with nested items.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to load orders")
	}
	if len(orders) == 0 {
		return []models.Order{}, nil
	}

	orderIDs := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		orderIDs[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	items, err := s.store.GetOrderItemsByOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to load order items")
	}
	for i := range items {
		if order, ok := byID[items[i].OrderID]; ok {
			order.Items = append(order.Items, items[i])
		}
	}

	return orders, nil
}

// GetOrder returns one of the user's orders with nested items.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperr.New(apperr.CodeForbidden, "order %d does not belong to you", orderID)
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to load order items")
	}
	order.Items = items
	return order, nil
}

// cartTotal sums quantity times current product price across the lines.
func cartTotal(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for i := range lines {
		total = total.Add(lines[i].Subtotal())
	}
	return total
}
