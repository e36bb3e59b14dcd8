package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/zaloga/internal/model"
)

func stockCategory(t *testing.T, s *Service, category, price string, quantity int, status model.Status) *model.StockRecord {
	t.Helper()
	r := &model.StockRecord{
		Name:       category + " item",
		Category:   category,
		Quantity:   quantity,
		ExpiryDate: fresh(),
		Status:     status,
	}
	if price != "" {
		r.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	require.NoError(t, s.Create(context.Background(), r))
	return r
}

func TestForecast(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	stockCategory(t, s, "dairy", "1.50", 10, model.StatusWarehouse)
	milk := stockCategory(t, s, "dairy", "1.50", 6, model.StatusShowcase)
	bread := stockCategory(t, s, "bread", "1.00", 40, model.StatusShowcase)
	stockCategory(t, s, "frozen", "", 3, model.StatusWarehouse)
	loose := stockCategory(t, s, "", "2.00", 5, model.StatusShowcase)

	// Sales older than the window are ignored.
	s.Now = func() time.Time { return clock.AddDate(0, 0, -40) }
	_, err := s.Sell(ctx, bread.ID, 5, nil)
	require.NoError(t, err)
	s.Now = func() time.Time { return clock }

	_, err = s.Sell(ctx, milk.ID, 6, nil)
	require.NoError(t, err)
	_, err = s.Sell(ctx, bread.ID, 30, nil)
	require.NoError(t, err)
	_, err = s.Sell(ctx, loose.ID, 5, nil)
	require.NoError(t, err)

	forecasts, err := s.Forecast(ctx)
	require.NoError(t, err)
	require.Len(t, forecasts, 3)

	bc := forecasts[0]
	assert.Equal(t, "bread", bc.Category)
	assert.Equal(t, 0, bc.CurrentStock)
	assert.Equal(t, 30, bc.HistoricalSales)
	assert.True(t, bc.AverageDailySales.Equal(decimal.NewFromInt(1)), bc.AverageDailySales.String())
	assert.True(t, bc.ForecastNextWeek.Equal(decimal.NewFromInt(7)), bc.ForecastNextWeek.String())
	assert.Equal(t, 7, bc.RecommendedOrder)
	assert.True(t, bc.ForecastRevenue.Equal(decimal.NewFromInt(30)), bc.ForecastRevenue.String())

	dc := forecasts[1]
	assert.Equal(t, "dairy", dc.Category)
	assert.Equal(t, 10, dc.CurrentStock)
	assert.Equal(t, 6, dc.HistoricalSales)
	assert.True(t, dc.AverageDailySales.Equal(decimal.RequireFromString("0.2")), dc.AverageDailySales.String())
	assert.True(t, dc.ForecastNextWeek.Equal(decimal.RequireFromString("1.4")), dc.ForecastNextWeek.String())
	assert.Equal(t, 0, dc.RecommendedOrder)
	assert.True(t, dc.ForecastRevenue.Equal(decimal.NewFromInt(9)), dc.ForecastRevenue.String())

	fc := forecasts[2]
	assert.Equal(t, "frozen", fc.Category)
	assert.Equal(t, 3, fc.CurrentStock)
	assert.Zero(t, fc.HistoricalSales)
	assert.Zero(t, fc.RecommendedOrder)
	assert.True(t, fc.ForecastRevenue.IsZero())
}

func TestForecastEmpty(t *testing.T) {
	s := newService(t)
	forecasts, err := s.Forecast(context.Background())
	require.NoError(t, err)
	assert.Empty(t, forecasts)
}
