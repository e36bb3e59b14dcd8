// Package inventory owns the stock lifecycle: the item store contract and the
// transfers between warehouse, showcase, sold and deleted.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/zaloga/internal/barcode"
	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/expiry"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// Service runs every stock mutation inside a single transaction.
type Service struct {
	DB       *sql.DB
	Barcodes *barcode.Allocator
	Now      func() time.Time
}

// New returns a Service using the wall clock.
func New(database *sql.DB, barcodes *barcode.Allocator) *Service {
	return &Service{DB: database, Barcodes: barcodes, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Today is the date expiry is evaluated against.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now())
}

// Get returns a record by ID.
func (s *Service) Get(ctx context.Context, id int64) (*model.StockRecord, error) {
	return get(ctx, s.DB, id)
}

func get(ctx context.Context, q db.Querier, id int64) (*model.StockRecord, error) {
	r, err := store.GetStock(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("stock %d: %w", id, model.ErrNotFound)
	}
	return r, nil
}

// FindByBarcode returns the live record for barcode at status, or nil.
func (s *Service) FindByBarcode(ctx context.Context, code string, status model.Status) (*model.StockRecord, error) {
	return store.FindStockByBarcode(ctx, s.DB, code, status)
}

// Scan returns the showcase record for a barcode.
func (s *Service) Scan(ctx context.Context, code string) (*model.StockRecord, error) {
	r, err := s.FindByBarcode(ctx, code, model.StatusShowcase)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("barcode %s on showcase: %w", code, model.ErrNotFound)
	}
	return r, nil
}

// OnHand returns the quantity of a barcode still in the warehouse or on the showcase.
func (s *Service) OnHand(ctx context.Context, code string) (int, error) {
	return store.SumLiveQuantity(ctx, s.DB, code)
}

// Query returns records matching the filter.
func (s *Service) Query(ctx context.Context, f model.StockFilter) ([]model.StockRecord, error) {
	return store.QueryStock(ctx, s.DB, f)
}

// Expiring returns warehouse and showcase records expiring within days from today.
func (s *Service) Expiring(ctx context.Context, days int) ([]model.StockRecord, error) {
	by := s.Today().AddDays(days)
	return s.Query(ctx, model.StockFilter{
		Statuses:   []model.Status{model.StatusWarehouse, model.StatusShowcase},
		ExpiringBy: &by,
	})
}

// History returns the movements that touched a record.
func (s *Service) History(ctx context.Context, id int64) ([]model.Movement, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return store.ListMovements(ctx, s.DB, id)
}

// Create stores a new record. A missing barcode is allocated and a missing
// status defaults to warehouse.
func (s *Service) Create(ctx context.Context, r *model.StockRecord) error {
	if r.ID != 0 {
		return fmt.Errorf("creating stock: record already has id %d", r.ID)
	}
	return db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return s.save(ctx, tx, r, s.now())
	})
}

// Save writes r, recomputing its expired flag and allocating a barcode if unset.
func (s *Service) Save(ctx context.Context, r *model.StockRecord) error {
	return db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return s.save(ctx, tx, r, s.now())
	})
}

func (s *Service) save(ctx context.Context, tx *sql.Tx, r *model.StockRecord, now time.Time) error {
	if r.Status == "" {
		r.Status = model.StatusWarehouse
	}
	if !r.Status.Valid() {
		return fmt.Errorf("saving stock: unknown status %q: %w", r.Status, model.ErrInvalidState)
	}
	if r.Quantity < 0 {
		return fmt.Errorf("saving stock: %w", model.ErrInvalidQuantity)
	}

	r.Expired = expiry.IsExpired(r.ExpiryDate, model.DateOf(now))
	if r.Barcode == "" {
		code, err := s.Barcodes.Allocate(ctx, tx)
		if err != nil {
			return err
		}
		r.Barcode = code
	} else if r.ID == 0 {
		if err := barcode.Reserve(ctx, tx, r.Barcode); err != nil {
			return err
		}
	}
	r.UpdatedAt = now

	if r.ID == 0 {
		if r.AddedAt.IsZero() {
			r.AddedAt = now
		}
		return store.InsertStock(ctx, tx, r)
	}
	return store.UpdateStock(ctx, tx, r)
}
