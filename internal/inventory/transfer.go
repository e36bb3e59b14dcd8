package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/expiry"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/pricing"
	"github.com/erazemk/zaloga/internal/store"
)

var transfersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zaloga_transfers_total",
		Help: "Units moved between statuses.",
	},
	[]string{"from", "to"},
)

// Result is the outcome of a transfer. Source and Target are the same record
// when the whole quantity changed status in place.
type Result struct {
	Source *model.StockRecord `json:"source"`
	Target *model.StockRecord `json:"target"`
}

// ToShowcase moves quantity units of a warehouse record onto the showcase.
func (s *Service) ToShowcase(ctx context.Context, id int64, quantity int, actor *int64) (*Result, error) {
	return s.transfer(ctx, id, quantity, model.StatusWarehouse, model.StatusShowcase, actor)
}

// ToWarehouse moves quantity units of a showcase record back to the warehouse.
func (s *Service) ToWarehouse(ctx context.Context, id int64, quantity int, actor *int64) (*Result, error) {
	return s.transfer(ctx, id, quantity, model.StatusShowcase, model.StatusWarehouse, actor)
}

// Sell moves quantity units of a showcase record into the sold bucket for its barcode.
func (s *Service) Sell(ctx context.Context, id int64, quantity int, actor *int64) (*Result, error) {
	return s.transfer(ctx, id, quantity, model.StatusShowcase, model.StatusSold, actor)
}

func (s *Service) transfer(ctx context.Context, id int64, quantity int, from, to model.Status, actor *int64) (*Result, error) {
	if quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	var res *Result
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := s.now()

		src, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		if src.Status != from {
			return fmt.Errorf("stock %d is %s, not %s: %w", id, src.Status, from, model.ErrInvalidStateTransition)
		}
		if src.Quantity < quantity {
			return fmt.Errorf("stock %d holds %d, requested %d: %w", id, src.Quantity, quantity, model.ErrInsufficientQuantity)
		}

		existing, err := store.FindStockByBarcode(ctx, tx, src.Barcode, to)
		if err != nil {
			return err
		}

		var target *model.StockRecord
		if quantity == src.Quantity && existing == nil && to != model.StatusSold {
			src.Status = to
			if err := s.save(ctx, tx, src, now); err != nil {
				return err
			}
			target = src
		} else {
			moved := src.Split(quantity, to)
			moved.Expired = expiry.IsExpired(moved.ExpiryDate, model.DateOf(now))
			moved.UpdatedAt = now

			src.Quantity -= quantity
			if src.Quantity == 0 {
				src.Status = model.StatusDeleted
			}
			if err := s.save(ctx, tx, src, now); err != nil {
				return err
			}
			if target, err = store.MergeStock(ctx, tx, moved); err != nil {
				return err
			}
			// The bucket may predate today; its flag is recomputed like any other write.
			if err := s.save(ctx, tx, target, now); err != nil {
				return err
			}
		}

		if err := record(ctx, tx, src, &target.ID, from, to, quantity, now, actor); err != nil {
			return err
		}
		res = &Result{Source: src, Target: target}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transfersTotal.WithLabelValues(string(from), string(to)).Add(float64(quantity))
	slog.Info("stock transferred", "id", id, "barcode", res.Source.Barcode,
		"from", from, "to", to, "quantity", quantity, "target", res.Target.ID)
	return res, nil
}

// Remove marks an expired warehouse or showcase record as deleted. Expiry is
// evaluated against today, so a stale flag does not block removal.
func (s *Service) Remove(ctx context.Context, id int64, actor *int64) (*model.StockRecord, error) {
	var removed *model.StockRecord
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := s.now()

		r, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return fmt.Errorf("stock %d is %s: %w", id, r.Status, model.ErrInvalidStateTransition)
		}
		if !expiry.IsExpired(r.ExpiryDate, model.DateOf(now)) {
			return fmt.Errorf("stock %d expires %s: %w", id, r.ExpiryDate, model.ErrNotExpired)
		}

		from := r.Status
		r.Status = model.StatusDeleted
		if err := s.save(ctx, tx, r, now); err != nil {
			return err
		}
		if err := record(ctx, tx, r, nil, from, model.StatusDeleted, r.Quantity, now, actor); err != nil {
			return err
		}
		removed = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock removed", "id", id, "barcode", removed.Barcode, "quantity", removed.Quantity)
	return removed, nil
}

// Discounted is the outcome of a price change.
type Discounted struct {
	Record   *model.StockRecord `json:"record"`
	OldPrice decimal.Decimal    `json:"old_price"`
	NewPrice decimal.Decimal    `json:"new_price"`
}

// ApplyDiscount lowers the price of a showcase record by percent.
func (s *Service) ApplyDiscount(ctx context.Context, id int64, percent decimal.Decimal) (*Discounted, error) {
	var out *Discounted
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		r, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		oldPrice, newPrice, err := pricing.ApplyDiscount(r, percent)
		if err != nil {
			return fmt.Errorf("discounting stock %d: %w", id, err)
		}
		if err := s.save(ctx, tx, r, s.now()); err != nil {
			return err
		}
		out = &Discounted{Record: r, OldPrice: oldPrice, NewPrice: newPrice}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("discount applied", "id", id, "percent", percent, "old", out.OldPrice, "new", out.NewPrice)
	return out, nil
}

func record(ctx context.Context, tx *sql.Tx, src *model.StockRecord, targetID *int64, from, to model.Status, quantity int, at time.Time, actor *int64) error {
	return store.RecordMovement(ctx, tx, &model.Movement{
		Barcode:    src.Barcode,
		SourceID:   src.ID,
		TargetID:   targetID,
		FromStatus: from,
		ToStatus:   to,
		Quantity:   quantity,
		MovedAt:    at,
		MovedBy:    actor,
	})
}
