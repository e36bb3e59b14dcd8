package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/zaloga/internal/model"
)

var dashes = regexp.MustCompile("[‐-―−﹘﹣－]")

// Day-first layouts are tried before month-first ones.
var dateLayouts = []string{
	"2006-1-2", "2-1-2006", "1-2-2006",
	"2006/1/2", "2/1/2006", "1/2/2006",
	"2.1.2006", "2006.1.2",
	"1-2-06", "1/2/06", "2.1.06",
	"2 Jan 2006", "Jan 2 2006", "January 2 2006",
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = model.NewDate(1899, time.December, 30)

// ParseDate accepts spreadsheet serial numbers and the common written forms.
func ParseDate(raw string) (model.Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return model.Date{}, fmt.Errorf("expiry date is empty")
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "-/") {
		if f < 1 || f > 2958465 {
			return model.Date{}, fmt.Errorf("expiry date serial %q out of range", raw)
		}
		return excelEpoch.AddDays(int(f)), nil
	}

	s = dashes.ReplaceAllString(s, "-")
	s = strings.ReplaceAll(s, ",", "")
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return model.DateOf(t), nil
	}
	if i := strings.IndexAny(s, "T "); i > 0 && strings.Contains(s[i:], ":") {
		s = s[:i]
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DateOf(t), nil
		}
	}
	return model.Date{}, fmt.Errorf("unrecognised date format: %q", raw)
}
