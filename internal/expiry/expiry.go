// Package expiry derives expiration state and notification eligibility.
package expiry

import (
	"fmt"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/notify"
)

// WarningFraction is the share of shelf life left at which a warning is sent.
const WarningFraction = 0.3

// Notice is the kind of notification a record qualifies for.
type Notice int

const (
	NoticeNone Notice = iota
	NoticeWarning
	NoticeExpired
)

func (n Notice) String() string {
	switch n {
	case NoticeWarning:
		return "warning"
	case NoticeExpired:
		return "expired"
	default:
		return "none"
	}
}

// IsExpired reports whether a product with the given expiry date is expired on asOf.
func IsExpired(expiryDate, asOf model.Date) bool {
	return expiryDate.Before(asOf)
}

// RemainingFraction returns the share of the record's shelf life left on asOf.
// The second result is false when the shelf life is not positive, in which
// case the fraction is undefined.
func RemainingFraction(r *model.StockRecord, asOf model.Date) (float64, bool) {
	lifetime := model.DateOf(r.AddedAt).DaysUntil(r.ExpiryDate)
	if lifetime <= 0 {
		return 0, false
	}
	return float64(asOf.DaysUntil(r.ExpiryDate)) / float64(lifetime), true
}

// Evaluate decides which notice, if any, the record qualifies for on asOf.
func Evaluate(r *model.StockRecord, asOf model.Date) Notice {
	fraction, ok := RemainingFraction(r, asOf)
	if !ok {
		return NoticeNone
	}
	if asOf.DaysUntil(r.ExpiryDate) <= 0 {
		return NoticeExpired
	}
	if fraction <= WarningFraction {
		return NoticeWarning
	}
	return NoticeNone
}

// MessageFor renders the notification for a record.
func MessageFor(r *model.StockRecord, n Notice, asOf model.Date, to string) notify.Message {
	switch n {
	case NoticeExpired:
		return notify.Message{
			To:      to,
			Subject: fmt.Sprintf("Product Expired: %s", r.Name),
			Body: fmt.Sprintf("Dear user,\n\nThe product '%s' (barcode %s, %d in %s) expired on %s.\n"+
				"Please take necessary actions.\n",
				r.Name, r.Barcode, r.Quantity, r.Status, r.ExpiryDate),
		}
	default:
		return notify.Message{
			To:      to,
			Subject: fmt.Sprintf("Expiry Warning for %s", r.Name),
			Body: fmt.Sprintf("Dear user,\n\nThe product '%s' (barcode %s, %d in %s) is nearing its expiration date (%s). "+
				"It has only %d days left, which is less than %d%% of its total shelf life.\n\n"+
				"Please take necessary actions.\n",
				r.Name, r.Barcode, r.Quantity, r.Status, r.ExpiryDate,
				asOf.DaysUntil(r.ExpiryDate), int(WarningFraction*100)),
		}
	}
}
