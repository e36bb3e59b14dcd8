package store

import (
	"context"
	"fmt"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

// WarehouseByCategory returns the warehouse quantity of every category that
// has ever been stocked. Categories with nothing left map to zero.
func WarehouseByCategory(ctx context.Context, q db.Querier) (map[string]int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT category, COALESCE(SUM(CASE WHEN status = 'warehouse' THEN quantity END), 0)
		 FROM stock
		 WHERE category IS NOT NULL AND category <> ''
		 GROUP BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("summing warehouse stock: %w", err)
	}
	defer rows.Close()

	totals := map[string]int{}
	for rows.Next() {
		var category string
		var total int
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scanning warehouse stock: %w", err)
		}
		totals[category] = total
	}
	return totals, rows.Err()
}

// ListSales returns every move into a sold bucket for categorised items,
// priced at the sold bucket's price.
func ListSales(ctx context.Context, q db.Querier) ([]model.Sale, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT s.category, m.quantity, s.price, m.moved_at
		 FROM movements m
		 JOIN stock s ON s.id = m.target_id
		 WHERE m.to_status = 'sold' AND s.category IS NOT NULL AND s.category <> ''
		 ORDER BY m.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		var sale model.Sale
		if err := rows.Scan(&sale.Category, &sale.Quantity, &sale.Price, &sale.SoldAt); err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
