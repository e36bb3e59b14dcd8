package inventory

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// Demand is averaged over SalesWindow days and projected ForecastDays ahead.
const (
	SalesWindow  = 30
	ForecastDays = 7
)

// Forecast projects next week's demand per category from the sales of the
// last SalesWindow days and compares it with what is left in the warehouse.
func (s *Service) Forecast(ctx context.Context) ([]model.CategoryForecast, error) {
	stock, err := store.WarehouseByCategory(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	sales, err := store.ListSales(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	type totals struct {
		sold    int
		revenue decimal.Decimal
	}
	since := s.Today().AddDays(-SalesWindow)
	byCategory := map[string]*totals{}
	for category := range stock {
		byCategory[category] = &totals{}
	}
	for _, sale := range sales {
		if model.DateOf(sale.SoldAt).Before(since) {
			continue
		}
		t := byCategory[sale.Category]
		if t == nil {
			t = &totals{}
			byCategory[sale.Category] = t
		}
		t.sold += sale.Quantity
		if sale.Price.Valid {
			t.revenue = t.revenue.Add(sale.Price.Decimal.Mul(decimal.NewFromInt(int64(sale.Quantity))))
		}
	}

	forecasts := make([]model.CategoryForecast, 0, len(byCategory))
	for category, t := range byCategory {
		daily := decimal.NewFromInt(int64(t.sold)).Div(decimal.NewFromInt(SalesWindow))
		week := daily.Mul(decimal.NewFromInt(ForecastDays))
		order := max(week.Sub(decimal.NewFromInt(int64(stock[category]))).IntPart(), 0)

		forecasts = append(forecasts, model.CategoryForecast{
			Category:          category,
			CurrentStock:      stock[category],
			HistoricalSales:   t.sold,
			AverageDailySales: daily.Round(2),
			ForecastNextWeek:  week.Round(2),
			RecommendedOrder:  int(order),
			ForecastRevenue:   t.revenue,
		})
	}
	slices.SortFunc(forecasts, func(a, b model.CategoryForecast) int {
		return strings.Compare(a.Category, b.Category)
	})
	return forecasts, nil
}
