package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

const uploadSelect = `SELECT up.id, up.file_name, up.uploaded_by, up.uploaded_at,
	        COALESCE(u.email, ''), (SELECT COUNT(*) FROM stock s WHERE s.upload_id = up.id)
	 FROM uploads up
	 LEFT JOIN users u ON u.id = up.uploaded_by`

// CreateUpload records a new upload batch.
func CreateUpload(ctx context.Context, q db.Querier, fileName string, uploadedBy *int64) (*model.UploadBatch, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO uploads (file_name, uploaded_by) VALUES (?, ?)`,
		fileName, uploadedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating upload: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting upload id: %w", err)
	}

	return GetUpload(ctx, q, id)
}

// GetUpload returns an upload batch by ID.
func GetUpload(ctx context.Context, q db.Querier, id int64) (*model.UploadBatch, error) {
	u := &model.UploadBatch{}
	err := q.QueryRowContext(ctx, uploadSelect+` WHERE up.id = ?`, id).
		Scan(&u.ID, &u.FileName, &u.UploadedBy, &u.UploadedAt, &u.UploaderEmail, &u.ItemCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting upload: %w", err)
	}
	return u, nil
}

// ListUploads returns all upload batches, newest first.
func ListUploads(ctx context.Context, q db.Querier) ([]model.UploadBatch, error) {
	rows, err := q.QueryContext(ctx, uploadSelect+` ORDER BY up.uploaded_at DESC, up.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer rows.Close()

	var uploads []model.UploadBatch
	for rows.Next() {
		var u model.UploadBatch
		if err := rows.Scan(&u.ID, &u.FileName, &u.UploadedBy, &u.UploadedAt, &u.UploaderEmail, &u.ItemCount); err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}
