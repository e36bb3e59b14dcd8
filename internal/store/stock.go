package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

const stockColumns = `s.id, s.barcode, s.name, s.category, s.quantity, s.price, s.expiry_date, s.status,
	s.expired, s.upload_id, s.added_at, s.updated_at, s.last_notified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanStock scans stockColumns, followed by any extra destinations.
func scanStock(row rowScanner, extra ...any) (*model.StockRecord, error) {
	r := &model.StockRecord{}
	var category sql.NullString
	var status string
	dest := []any{&r.ID, &r.Barcode, &r.Name, &category, &r.Quantity, &r.Price, &r.ExpiryDate, &status,
		&r.Expired, &r.UploadID, &r.AddedAt, &r.UpdatedAt, &r.LastNotifiedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Category = category.String
	r.Status = model.Status(status)
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetStock returns a stock record by ID, or nil if it does not exist.
func GetStock(ctx context.Context, q db.Querier, id int64) (*model.StockRecord, error) {
	r, err := scanStock(q.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM stock s WHERE s.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting stock %d: %w", id, err)
	}
	return r, nil
}

// FindStockByBarcode returns the live record for barcode at status, or nil.
// Deleted records are never returned since a barcode may have several.
func FindStockByBarcode(ctx context.Context, q db.Querier, barcode string, status model.Status) (*model.StockRecord, error) {
	if status == model.StatusDeleted {
		return nil, nil
	}
	r, err := scanStock(q.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM stock s WHERE s.barcode = ? AND s.status = ?`,
		barcode, string(status),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding stock by barcode: %w", err)
	}
	return r, nil
}

// InsertStock stores a new record and sets its ID. The barcode must already be set.
func InsertStock(ctx context.Context, q db.Querier, r *model.StockRecord) error {
	if r.Barcode == "" {
		return fmt.Errorf("inserting stock: barcode not assigned")
	}
	result, err := q.ExecContext(ctx,
		`INSERT INTO stock (barcode, name, category, quantity, price, expiry_date, status, expired,
		                    upload_id, added_at, updated_at, last_notified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Barcode, r.Name, nullString(r.Category), r.Quantity, r.Price, r.ExpiryDate, string(r.Status), r.Expired,
		r.UploadID, r.AddedAt, r.UpdatedAt, r.LastNotifiedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting stock: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting stock id: %w", err)
	}
	r.ID = id
	return nil
}

// UpdateStock writes every mutable field of r. The barcode is never rewritten.
func UpdateStock(ctx context.Context, q db.Querier, r *model.StockRecord) error {
	result, err := q.ExecContext(ctx,
		`UPDATE stock SET name = ?, category = ?, quantity = ?, price = ?, expiry_date = ?, status = ?,
		                  expired = ?, updated_at = ?, last_notified_at = ?
		 WHERE id = ?`,
		r.Name, nullString(r.Category), r.Quantity, r.Price, r.ExpiryDate, string(r.Status),
		r.Expired, r.UpdatedAt, r.LastNotifiedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating stock %d: %w", r.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating stock %d: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("updating stock %d: %w", r.ID, model.ErrNotFound)
	}
	return nil
}

// MergeStock adds r.Quantity to the live bucket for (r.Barcode, r.Status),
// creating the bucket from r if none exists, and returns the resulting record.
func MergeStock(ctx context.Context, q db.Querier, r *model.StockRecord) (*model.StockRecord, error) {
	if r.Status == model.StatusDeleted {
		return nil, fmt.Errorf("merging stock: deleted records have no bucket")
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO stock (barcode, name, category, quantity, price, expiry_date, status, expired,
		                    upload_id, added_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (barcode, status) WHERE status <> 'deleted'
		 DO UPDATE SET quantity = quantity + excluded.quantity, updated_at = excluded.updated_at`,
		r.Barcode, r.Name, nullString(r.Category), r.Quantity, r.Price, r.ExpiryDate, string(r.Status), r.Expired,
		r.UploadID, r.AddedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("merging stock into %s/%s: %w", r.Barcode, r.Status, err)
	}

	merged, err := FindStockByBarcode(ctx, q, r.Barcode, r.Status)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return nil, fmt.Errorf("merging stock into %s/%s: bucket vanished", r.Barcode, r.Status)
	}
	return merged, nil
}

// buildStockWhere turns a filter into a WHERE clause and its arguments.
func buildStockWhere(f model.StockFilter) (string, []any) {
	clauses := []string{"1=1"}
	var args []any

	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		clauses = append(clauses, "s.status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Category != "" {
		clauses = append(clauses, "s.category = ?")
		args = append(args, f.Category)
	}
	if f.Search != "" {
		clauses = append(clauses, "s.name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if f.Barcode != "" {
		clauses = append(clauses, "s.barcode = ?")
		args = append(args, f.Barcode)
	}
	if f.UploadID > 0 {
		clauses = append(clauses, "s.upload_id = ?")
		args = append(args, f.UploadID)
	}
	if f.ExpiringBy != nil {
		clauses = append(clauses, "s.expiry_date <= ?")
		args = append(args, f.ExpiringBy.String())
	}

	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// QueryStock returns records matching the filter, soonest expiry first.
func QueryStock(ctx context.Context, q db.Querier, f model.StockFilter) ([]model.StockRecord, error) {
	where, args := buildStockWhere(f)
	rows, err := q.QueryContext(ctx,
		`SELECT `+stockColumns+` FROM stock s WHERE `+where+` ORDER BY s.expiry_date, s.id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stock: %w", err)
	}
	defer rows.Close()

	var records []model.StockRecord
	for rows.Next() {
		r, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stock: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// ListSweepCandidates returns warehouse and showcase records together with the
// email of whoever imported them (empty when unknown).
func ListSweepCandidates(ctx context.Context, q db.Querier) ([]model.StockRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+stockColumns+`, COALESCE(u.email, '')
		 FROM stock s
		 LEFT JOIN uploads up ON up.id = s.upload_id
		 LEFT JOIN users u ON u.id = up.uploaded_by AND u.deleted_at IS NULL
		 WHERE s.status IN ('warehouse', 'showcase')
		 ORDER BY s.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sweep candidates: %w", err)
	}
	defer rows.Close()

	var records []model.StockRecord
	for rows.Next() {
		var email string
		r, err := scanStock(rows, &email)
		if err != nil {
			return nil, fmt.Errorf("scanning sweep candidate: %w", err)
		}
		r.UploaderEmail = email
		records = append(records, *r)
	}
	return records, rows.Err()
}

// SetStockExpired stores a recomputed expired flag.
func SetStockExpired(ctx context.Context, q db.Querier, id int64, expired bool, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE stock SET expired = ?, updated_at = ? WHERE id = ?`, expired, at, id,
	)
	if err != nil {
		return fmt.Errorf("setting expired flag on stock %d: %w", id, err)
	}
	return nil
}

// MarkStockNotified records when a notice about the record was last sent.
func MarkStockNotified(ctx context.Context, q db.Querier, id int64, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE stock SET last_notified_at = ? WHERE id = ?`, at, id,
	)
	if err != nil {
		return fmt.Errorf("marking stock %d notified: %w", id, err)
	}
	return nil
}

// SumLiveQuantity returns the total quantity of barcode across warehouse and showcase.
func SumLiveQuantity(ctx context.Context, q db.Querier, barcode string) (int, error) {
	var total int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock
		 WHERE barcode = ? AND status IN ('warehouse', 'showcase')`, barcode,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing quantity for %s: %w", barcode, err)
	}
	return total, nil
}
