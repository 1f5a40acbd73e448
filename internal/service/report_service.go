package service

import (
	"context"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportService builds the daily sales aggregate and hands it to the
// notification pipeline.
type ReportService struct {
	store     Store
	publisher EventPublisher
	recipient string
	logger    *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(store Store, publisher EventPublisher, recipient string) *ReportService {
	return &ReportService{
		store:     store,
		publisher: publisher,
		recipient: recipient,
		logger:    util.GetLogger(),
	}
}

// SendDailyReport aggregates completed orders for the given UTC day and
// publishes a DailySalesReport event. A day with zero orders is a no-op.
func (s *ReportService) SendDailyReport(ctx context.Context, day time.Time) (*models.DailySales, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.SendDailyReport")
	defer span.End()

	sales, err := s.store.GetDailySales(ctx, day)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to aggregate daily sales")
	}

	if sales.TotalOrders == 0 {
		s.logger.Info("No completed orders today, skipping sales report",
			zap.Time("day", sales.Day))
		return sales, nil
	}

	event := &models.DailySalesReportEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDailySalesReport,
			Timestamp: time.Now(),
		},
		Recipient:    s.recipient,
		Day:          sales.Day.Format("2006-01-02"),
		TotalOrders:  sales.TotalOrders,
		TotalRevenue: sales.TotalRevenue,
		Products:     sales.Products,
	}

	if err := s.publisher.PublishDailySalesReport(ctx, event); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to publish daily sales report")
	}

	util.ReportsSentTotal.Inc()
	s.logger.Info("Daily sales report published",
		zap.Time("day", sales.Day),
		zap.Int("total_orders", sales.TotalOrders),
		zap.String("total_revenue", sales.TotalRevenue.StringFixed(2)))
	return sales, nil
}

// ProductService exposes catalog reads for the storefront.
type ProductService struct {
	store  Store
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store Store) *ProductService {
	return &ProductService{store: store, logger: util.GetLogger()}
}

// ListProducts returns the full catalog.
func (s *ProductService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts")
	defer span.End()

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to load products")
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

// ListProductsByIDs returns the catalog entries for the given ids.
// Unknown ids are skipped rather than erroring.
func (s *ProductService) ListProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProductsByIDs")
	defer span.End()

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "failed to load products")
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

// GetProduct returns a single product.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProduct")
	defer span.End()

	return s.store.GetProductByID(ctx, id)
}

// SyncStockCache seeds the stock mirror from the database. Called at
// startup; per-product failures are logged and skipped.
func (s *ProductService) SyncStockCache(ctx context.Context, cache Cache) error {
	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "failed to load products for stock sync")
	}

	for i := range products {
		if err := cache.SetStock(ctx, products[i].ID, products[i].StockQuantity); err != nil {
			s.logger.Warn("Failed to mirror stock",
				zap.Int64("product_id", products[i].ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Stock mirror synced", zap.Int("count", len(products)))
	return nil
}
