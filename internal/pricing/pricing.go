// Package pricing applies percentage discounts with exact decimal arithmetic.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Discount returns price reduced by percent: price * (1 - percent/100).
// Percent is not clamped; values outside [0, 100] yield a negative or raised price.
func Discount(price, percent decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Sub(percent.Div(hundred)))
}

// ApplyDiscount lowers the price of a showcase record in place and returns the
// price before and after.
func ApplyDiscount(r *model.StockRecord, percent decimal.Decimal) (oldPrice, newPrice decimal.Decimal, err error) {
	if r.Status != model.StatusShowcase {
		return decimal.Decimal{}, decimal.Decimal{}, model.ErrInvalidState
	}
	if !r.Price.Valid {
		return decimal.Decimal{}, decimal.Decimal{}, model.ErrPriceNotSet
	}

	oldPrice = r.Price.Decimal
	newPrice = Discount(oldPrice, percent)
	r.Price = decimal.NewNullDecimal(newPrice)
	return oldPrice, newPrice, nil
}
