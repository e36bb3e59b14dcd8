package store

import (
	"context"
	"fmt"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

// RecordMovement appends a movement row and sets its ID.
func RecordMovement(ctx context.Context, q db.Querier, m *model.Movement) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO movements (barcode, source_id, target_id, from_status, to_status, quantity, moved_at, moved_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Barcode, m.SourceID, m.TargetID, string(m.FromStatus), string(m.ToStatus), m.Quantity, m.MovedAt, m.MovedBy,
	)
	if err != nil {
		return fmt.Errorf("recording movement: %w", err)
	}
	m.ID, _ = result.LastInsertId()
	return nil
}

// ListMovements returns movements that touched a stock record, newest first.
func ListMovements(ctx context.Context, q db.Querier, stockID int64) ([]model.Movement, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, barcode, source_id, target_id, from_status, to_status, quantity, moved_at, moved_by
		 FROM movements
		 WHERE source_id = ? OR target_id = ?
		 ORDER BY moved_at DESC, id DESC`, stockID, stockID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	defer rows.Close()

	var movements []model.Movement
	for rows.Next() {
		var m model.Movement
		var from, to string
		if err := rows.Scan(&m.ID, &m.Barcode, &m.SourceID, &m.TargetID, &from, &to, &m.Quantity,
			&m.MovedAt, &m.MovedBy); err != nil {
			return nil, fmt.Errorf("scanning movement: %w", err)
		}
		m.FromStatus = model.Status(from)
		m.ToStatus = model.Status(to)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
