package worker

import (
	"context"
	"fmt"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Notifier delivers notifications to the admin recipient. The actual
// transport (mail, chat, pager) plugs in here; delivery failure never
// propagates back to the request that triggered the event.
type Notifier interface {
	NotifyLowStock(ctx context.Context, event *models.LowStockEvent) error
	NotifyDailySalesReport(ctx context.Context, event *models.DailySalesReportEvent) error
}

// LogNotifier formats notifications and records them in the service log.
type LogNotifier struct {
	recipient string
	logger    *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(recipient string) *LogNotifier {
	return &LogNotifier{recipient: recipient, logger: util.GetLogger()}
}

// NotifyLowStock delivers a low-stock alert
func (n *LogNotifier) NotifyLowStock(ctx context.Context, event *models.LowStockEvent) error {
	n.logger.Warn("Low stock alert",
		zap.String("recipient", n.recipient),
		zap.String("product", event.ProductName),
		zap.Int("stock_quantity", event.StockQuantity),
		zap.Int("threshold", event.Threshold))
	return nil
}

// NotifyDailySalesReport delivers the daily sales report
func (n *LogNotifier) NotifyDailySalesReport(ctx context.Context, event *models.DailySalesReportEvent) error {
	n.logger.Info("Daily sales report",
		zap.String("recipient", event.Recipient),
		zap.String("day", event.Day),
		zap.Int("total_orders", event.TotalOrders),
		zap.String("total_revenue", event.TotalRevenue.StringFixed(2)),
		zap.String("body", FormatDailySalesReport(event)))
	return nil
}

// FormatDailySalesReport renders the report body delivered to the
// recipient.
func FormatDailySalesReport(event *models.DailySalesReportEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily Sales Report for %s\n", event.Day)
	fmt.Fprintf(&b, "Total orders: %d\n", event.TotalOrders)
	fmt.Fprintf(&b, "Total revenue: %s\n", event.TotalRevenue.StringFixed(2))
	if len(event.Products) > 0 {
		b.WriteString("Products sold:\n")
		for i := range event.Products {
			p := &event.Products[i]
			fmt.Fprintf(&b, "  %s: %d units, %s\n", p.ProductName, p.Quantity, p.Revenue.StringFixed(2))
		}
	}
	return b.String()
}
