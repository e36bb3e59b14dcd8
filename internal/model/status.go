package model

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle location of a stock record.
type Status string

// Stock statuses. Sold and deleted are terminal.
const (
	StatusWarehouse Status = "warehouse"
	StatusShowcase  Status = "showcase"
	StatusSold      Status = "sold"
	StatusDeleted   Status = "deleted"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusWarehouse, StatusShowcase, StatusSold, StatusDeleted}

// ParseStatus converts s into a Status, rejecting anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether records in this status can no longer move.
func (s Status) Terminal() bool {
	return s == StatusSold || s == StatusDeleted
}

func (s Status) String() string {
	return string(s)
}

// UnmarshalJSON rejects unknown statuses.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
