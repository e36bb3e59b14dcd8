package expiry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/notify"
	"github.com/erazemk/zaloga/internal/store"
)

var sweepRecords = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zaloga_expiry_sweep_records_total",
		Help: "Records handled by the expiry sweep, by outcome.",
	},
	[]string{"outcome"},
)

// Summary counts what one sweep did.
type Summary struct {
	Checked int `json:"checked"`
	Flagged int `json:"flagged"`
	Warned  int `json:"warned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweeper refreshes expired flags and notifies uploaders about expiring stock.
type Sweeper struct {
	DB       *sql.DB
	Notifier notify.Notifier
	// Now defaults to time.Now.
	Now func() time.Time
	// Cooldown suppresses a repeat notice for a record notified less than
	// Cooldown ago. Zero sends on every sweep.
	Cooldown time.Duration
	Logger   *slog.Logger
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Run performs one sweep. A failure on one record is logged and counted and
// does not stop the others.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	now := s.now()

	records, err := store.ListSweepCandidates(ctx, s.DB)
	if err != nil {
		return sum, err
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Checked++
		outcome, err := s.process(ctx, &records[i], now, &sum)
		if err != nil {
			sum.Failed++
			outcome = "failed"
			s.logger().Error("expiry sweep: record failed", "id", records[i].ID, "barcode", records[i].Barcode, "error", err)
		}
		sweepRecords.WithLabelValues(outcome).Inc()
	}

	s.remember(ctx, now, sum)
	s.logger().Info("expiry sweep finished", "checked", sum.Checked, "flagged", sum.Flagged,
		"warned", sum.Warned, "expired", sum.Expired, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

func (s *Sweeper) process(ctx context.Context, r *model.StockRecord, now time.Time, sum *Summary) (string, error) {
	today := model.DateOf(now)

	if expired := IsExpired(r.ExpiryDate, today); expired != r.Expired {
		if err := store.SetStockExpired(ctx, s.DB, r.ID, expired, now); err != nil {
			return "", err
		}
		r.Expired = expired
		sum.Flagged++
	}

	notice := Evaluate(r, today)
	if notice == NoticeNone {
		return "ok", nil
	}
	if r.UploaderEmail == "" {
		sum.Skipped++
		return "no_recipient", nil
	}
	if s.Cooldown > 0 && r.LastNotifiedAt != nil && now.Sub(*r.LastNotifiedAt) < s.Cooldown {
		sum.Skipped++
		return "cooldown", nil
	}

	if err := s.Notifier.Send(ctx, MessageFor(r, notice, today, r.UploaderEmail)); err != nil {
		return "", fmt.Errorf("sending %s notice: %w", notice, err)
	}
	if err := store.MarkStockNotified(ctx, s.DB, r.ID, now); err != nil {
		return "", err
	}

	if notice == NoticeExpired {
		sum.Expired++
	} else {
		sum.Warned++
	}
	return notice.String(), nil
}

func (s *Sweeper) remember(ctx context.Context, now time.Time, sum Summary) {
	data, _ := json.Marshal(sum)
	if err := store.PutSetting(ctx, s.DB, store.SettingLastSweepAt, now.Format(time.RFC3339)); err != nil {
		s.logger().Warn("expiry sweep: storing last run", "error", err)
	}
	if err := store.PutSetting(ctx, s.DB, store.SettingLastSweepInfo, string(data)); err != nil {
		s.logger().Warn("expiry sweep: storing summary", "error", err)
	}
}

// Start runs a sweep immediately and then every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger().Error("expiry sweep failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.logger().Info("expiry sweep scheduled", "interval", interval.String())
}
