package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRecord is a group of identical units sharing a barcode and a status.
type StockRecord struct {
	ID             int64               `json:"id"`
	Barcode        string              `json:"barcode"`
	Name           string              `json:"name"`
	Category       string              `json:"category,omitempty"`
	Quantity       int                 `json:"quantity"`
	Price          decimal.NullDecimal `json:"price"`
	ExpiryDate     Date                `json:"expiry_date"`
	Status         Status              `json:"status"`
	Expired        bool                `json:"expired"`
	UploadID       *int64              `json:"upload_id,omitempty"`
	AddedAt        time.Time           `json:"added_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	LastNotifiedAt *time.Time          `json:"last_notified_at,omitempty"`

	// Joined from the upload batch (not always populated).
	UploaderEmail string `json:"-"`
}

// Split returns a copy of r carrying quantity units at status, with no identity or barcode change.
func (r *StockRecord) Split(quantity int, status Status) *StockRecord {
	c := *r
	c.ID = 0
	c.Quantity = quantity
	c.Status = status
	c.LastNotifiedAt = nil
	return &c
}

// StockFilter narrows a stock query. Zero values mean "no constraint".
type StockFilter struct {
	Statuses []Status
	Category string
	Search   string
	Barcode  string
	UploadID int64
	// ExpiringBy keeps records expiring on or before this date.
	ExpiringBy *Date
}

// Movement records one quantity move between statuses.
type Movement struct {
	ID         int64     `json:"id"`
	Barcode    string    `json:"barcode"`
	SourceID   int64     `json:"source_id"`
	TargetID   *int64    `json:"target_id,omitempty"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Quantity   int       `json:"quantity"`
	MovedAt    time.Time `json:"moved_at"`
	MovedBy    *int64    `json:"moved_by,omitempty"`
}
