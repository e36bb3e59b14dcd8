// Package barcode issues numeric barcodes that are never handed out twice.
package barcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/erazemk/zaloga/internal/db"
)

// ErrAllocationExhausted is returned when no unused barcode could be found.
var ErrAllocationExhausted = errors.New("barcode space exhausted")

// Config describes the barcode value space.
type Config struct {
	// Width is the number of digits; shorter values are zero padded.
	Width int
	// Min and Max bound the numeric value, inclusive.
	Min, Max int64
	// Attempts caps random draws per allocation before the lowest free
	// value is taken instead.
	Attempts int
}

// DefaultConfig issues 13-digit codes.
var DefaultConfig = Config{
	Width:    13,
	Min:      1_000_000_000_000,
	Max:      9_999_999_999_999,
	Attempts: 64,
}

// Allocator draws random codes and reserves them in the barcodes table.
type Allocator struct {
	cfg  Config
	rand io.Reader
}

// New validates cfg and returns an allocator.
func New(cfg Config) (*Allocator, error) {
	if cfg.Width <= 0 || cfg.Width > 18 {
		return nil, fmt.Errorf("barcode width must be between 1 and 18, got %d", cfg.Width)
	}
	if cfg.Min < 0 || cfg.Max < cfg.Min {
		return nil, fmt.Errorf("invalid barcode range [%d, %d]", cfg.Min, cfg.Max)
	}
	if len(fmt.Sprint(cfg.Max)) > cfg.Width {
		return nil, fmt.Errorf("barcode max %d does not fit in %d digits", cfg.Max, cfg.Width)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultConfig.Attempts
	}
	return &Allocator{cfg: cfg, rand: rand.Reader}, nil
}

// Size returns the number of distinct codes in the configured range.
func (a *Allocator) Size() int64 {
	return a.cfg.Max - a.cfg.Min + 1
}

// Format renders n at the configured width.
func (a *Allocator) Format(n int64) string {
	s := fmt.Sprint(n)
	if len(s) < a.cfg.Width {
		s = strings.Repeat("0", a.cfg.Width-len(s)) + s
	}
	return s
}

// Allocate reserves and returns a barcode that has never been issued before.
// Run it inside the transaction that stores the record so a rollback frees it.
func (a *Allocator) Allocate(ctx context.Context, q db.Querier) (string, error) {
	issued, err := a.issued(ctx, q)
	if err != nil {
		return "", err
	}
	if issued >= a.Size() {
		return "", ErrAllocationExhausted
	}

	span := big.NewInt(a.Size())
	for range a.cfg.Attempts {
		n, err := rand.Int(a.rand, span)
		if err != nil {
			return "", fmt.Errorf("drawing barcode: %w", err)
		}
		code := a.Format(a.cfg.Min + n.Int64())

		ok, err := reserve(ctx, q, code)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}

	// The space is crowded; take the lowest free value instead.
	code, ok, err := a.firstFree(ctx, q)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAllocationExhausted
	}
	if _, err := reserve(ctx, q, code); err != nil {
		return "", err
	}
	return code, nil
}

// Reserve marks a caller-chosen code as issued so Allocate never returns it.
// Reserving a code twice is not an error.
func Reserve(ctx context.Context, q db.Querier, code string) error {
	_, err := reserve(ctx, q, code)
	return err
}

// inRange matches reserved codes that fall inside the configured value space.
const inRange = `length(code) = ? AND code NOT GLOB '*[^0-9]*' AND code BETWEEN ? AND ?`

func (a *Allocator) rangeArgs() []any {
	return []any{a.cfg.Width, a.Format(a.cfg.Min), a.Format(a.cfg.Max)}
}

func (a *Allocator) issued(ctx context.Context, q db.Querier) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM barcodes WHERE `+inRange, a.rangeArgs()...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting issued barcodes: %w", err)
	}
	return n, nil
}

// firstFree walks the reserved codes in order and returns the first gap.
func (a *Allocator) firstFree(ctx context.Context, q db.Querier) (string, bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT code FROM barcodes WHERE `+inRange+` ORDER BY code`, a.rangeArgs()...,
	)
	if err != nil {
		return "", false, fmt.Errorf("scanning issued barcodes: %w", err)
	}
	defer rows.Close()

	next := a.cfg.Min
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return "", false, fmt.Errorf("scanning issued barcodes: %w", err)
		}
		n, err := strconv.ParseInt(code, 10, 64)
		if err != nil {
			continue
		}
		if n > next {
			break
		}
		next = n + 1
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("scanning issued barcodes: %w", err)
	}
	if next > a.cfg.Max {
		return "", false, nil
	}
	return a.Format(next), true, nil
}

func reserve(ctx context.Context, q db.Querier, code string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO barcodes (code) VALUES (?)`, code,
	)
	if err != nil {
		return false, fmt.Errorf("reserving barcode: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserving barcode: %w", err)
	}
	return n == 1, nil
}
