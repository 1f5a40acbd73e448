package worker

import (
	"context"
	"log"
	"time"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes the notifications topic and hands events
// to the Notifier. Consumption is at-least-once and fire-and-forget:
// delivery failures are counted and logged, never retried back into the
// producing request.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnLowStock(func(ctx context.Context, event *models.LowStockEvent) error {
		if err := notifier.NotifyLowStock(ctx, event); err != nil {
			util.NotificationsFailedTotal.WithLabelValues("low_stock").Inc()
			return err
		}
		util.NotificationsDeliveredTotal.WithLabelValues("low_stock").Inc()
		return nil
	})

	eventHandler.OnDailySalesReport(func(ctx context.Context, event *models.DailySalesReportEvent) error {
		if err := notifier.NotifyDailySalesReport(ctx, event); err != nil {
			util.NotificationsFailedTotal.WithLabelValues("daily_sales_report").Inc()
			return err
		}
		util.NotificationsDeliveredTotal.WithLabelValues("daily_sales_report").Inc()
		return nil
	})

	eventHandler.OnOrderPlaced(func(ctx context.Context, event *models.OrderPlacedEvent) error {
		logger.Info("Order placed event received",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("user_id", event.UserID))
		return nil
	})

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

// ReportSender is the reporting surface the scheduler drives.
type ReportSender interface {
	SendDailyReport(ctx context.Context, day time.Time) (*models.DailySales, error)
}

// ReportScheduler fires the daily sales report at a fixed UTC hour.
type ReportScheduler struct {
	reports ReportSender
	hour    int
	logger  *zap.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewReportScheduler creates a scheduler firing daily at the given UTC hour
func NewReportScheduler(reports ReportSender, hourUTC int) *ReportScheduler {
	return &ReportScheduler{
		reports: reports,
		hour:    hourUTC,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// Start runs the scheduler until the context is cancelled.
func (rs *ReportScheduler) Start(ctx context.Context) error {
	rs.logger.Info("Starting report scheduler", zap.Int("hour_utc", rs.hour))

	for {
		wait := time.Until(nextRun(rs.now(), rs.hour))

		select {
		case <-ctx.Done():
			rs.logger.Info("Report scheduler stopped")
			return ctx.Err()
		case <-time.After(wait):
			if err := rs.runOnce(ctx); err != nil {
				rs.logger.Error("Daily sales report failed", zap.Error(err))
			}
		}
	}
}

// runOnce reports on the current UTC day, so a firing configured near
// midnight covers the day that is ending.
func (rs *ReportScheduler) runOnce(ctx context.Context) error {
	_, err := rs.reports.SendDailyReport(ctx, rs.now().UTC())
	return err
}

// nextRun returns the next occurrence of the given UTC hour strictly
// after now.
func nextRun(now time.Time, hourUTC int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
