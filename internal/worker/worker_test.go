package worker

import (
	"context"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReportSender struct {
	day time.Time
	err error
}

func (s *stubReportSender) SendDailyReport(ctx context.Context, day time.Time) (*models.DailySales, error) {
	s.day = day
	return &models.DailySales{Day: day}, s.err
}

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 30, 0, 0, time.UTC)

	// later today
	assert.Equal(t,
		time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC),
		nextRun(now, 8))

	// already past, so tomorrow
	assert.Equal(t,
		time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC),
		nextRun(now, 5))

	// exactly at the hour fires the next day
	atHour := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	assert.Equal(t,
		time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		nextRun(atHour, 8))
}

func TestSchedulerReportsCurrentUTCDay(t *testing.T) {
	sender := &stubReportSender{}
	rs := NewReportScheduler(sender, 23)

	// firing near midnight covers the day that is ending
	fixed := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	rs.now = func() time.Time { return fixed }

	require.NoError(t, rs.runOnce(context.Background()))
	assert.Equal(t, "2026-08-31", sender.day.Format("2006-01-02"))
}

func TestFormatDailySalesReport(t *testing.T) {
	event := &models.DailySalesReportEvent{
		Day:          "2026-08-30",
		TotalOrders:  2,
		TotalRevenue: decimal.RequireFromString("35.00"),
		Products: []models.ProductSales{
			{ProductName: "Widget", Quantity: 3, Revenue: decimal.RequireFromString("30.00")},
			{ProductName: "Gadget", Quantity: 1, Revenue: decimal.RequireFromString("5.00")},
		},
	}

	body := FormatDailySalesReport(event)
	assert.Contains(t, body, "Daily Sales Report for 2026-08-30")
	assert.Contains(t, body, "Total orders: 2")
	assert.Contains(t, body, "Total revenue: 35.00")
	assert.Contains(t, body, "Widget: 3 units, 30.00")
	assert.Contains(t, body, "Gadget: 1 units, 5.00")
}
