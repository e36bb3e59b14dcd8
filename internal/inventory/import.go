package inventory

import (
	"context"
	"database/sql"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/importer"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

var importRows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zaloga_import_rows_total",
		Help: "Import file rows by result.",
	},
	[]string{"result"},
)

// Imported summarises one import.
type Imported struct {
	Upload   *model.UploadBatch `json:"upload"`
	Imported int                `json:"imported"`
	Skipped  int                `json:"skipped"`
}

// Import parses a file and stores every readable row as a new warehouse
// record under one upload batch. Unreadable rows are logged and skipped;
// an unreadable file imports nothing.
func (s *Service) Import(ctx context.Context, fileName string, r io.Reader, uploadedBy *int64) (*Imported, error) {
	parsed, err := importer.Parse(fileName, r)
	if err != nil {
		return nil, err
	}
	for _, rowErr := range parsed.Errors {
		slog.Warn("import row skipped", "file", fileName, "line", rowErr.Line, "error", rowErr.Err)
	}

	var batch *model.UploadBatch
	err = db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := s.now()

		b, err := store.CreateUpload(ctx, tx, fileName, uploadedBy)
		if err != nil {
			return err
		}
		batch = b
		for _, row := range parsed.Rows {
			rec := &model.StockRecord{
				Name:       row.Name,
				Category:   row.Category,
				Quantity:   row.Quantity,
				Price:      row.Price,
				ExpiryDate: row.ExpiryDate,
				Status:     model.StatusWarehouse,
				UploadID:   &batch.ID,
			}
			if err := s.save(ctx, tx, rec, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.ItemCount = len(parsed.Rows)
	importRows.WithLabelValues("imported").Add(float64(len(parsed.Rows)))
	importRows.WithLabelValues("skipped").Add(float64(len(parsed.Errors)))
	slog.Info("import finished", "file", fileName, "upload", batch.ID,
		"imported", len(parsed.Rows), "skipped", len(parsed.Errors))

	return &Imported{Upload: batch, Imported: len(parsed.Rows), Skipped: len(parsed.Errors)}, nil
}

// Uploads lists every upload batch.
func (s *Service) Uploads(ctx context.Context) ([]model.UploadBatch, error) {
	return store.ListUploads(ctx, s.DB)
}

// UploadItems returns the warehouse records imported by one batch.
func (s *Service) UploadItems(ctx context.Context, uploadID int64) ([]model.StockRecord, error) {
	batch, err := store.GetUpload(ctx, s.DB, uploadID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, model.ErrNotFound
	}
	return s.Query(ctx, model.StockFilter{
		Statuses: []model.Status{model.StatusWarehouse},
		UploadID: uploadID,
	})
}
