package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is one move into the sold bucket of a categorised item.
type Sale struct {
	Category string
	Quantity int
	Price    decimal.NullDecimal
	SoldAt   time.Time
}

// CategoryForecast summarises recent demand for one category.
type CategoryForecast struct {
	Category          string          `json:"category"`
	CurrentStock      int             `json:"current_stock"`
	HistoricalSales   int             `json:"historical_sales"`
	AverageDailySales decimal.Decimal `json:"average_daily_sales"`
	ForecastNextWeek  decimal.Decimal `json:"forecast_next_week"`
	RecommendedOrder  int             `json:"recommended_order"`
	ForecastRevenue   decimal.Decimal `json:"forecast_revenue"`
}
