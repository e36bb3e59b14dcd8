package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, st := range Statuses {
		got, err := ParseStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	for _, bad := range []string{"", "active", "removed", "vitrina", "Showcase"} {
		_, err := ParseStatus(bad)
		assert.Error(t, err, "ParseStatus(%q)", bad)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusWarehouse.Terminal())
	assert.False(t, StatusShowcase.Terminal())
	assert.True(t, StatusSold.Terminal())
	assert.True(t, StatusDeleted.Terminal())
}

func TestStatusUnmarshalRejectsUnknown(t *testing.T) {
	var st Status
	require.NoError(t, json.Unmarshal([]byte(`"sold"`), &st))
	assert.Equal(t, StatusSold, st)

	assert.Error(t, json.Unmarshal([]byte(`"removed"`), &st))
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2025, time.April, 9)
	assert.Equal(t, "2025-04-09", d.String())
	assert.Equal(t, 10, d.DaysUntil(d.AddDays(10)))
	assert.Equal(t, -3, d.DaysUntil(d.AddDays(-3)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))

	local := time.Date(2025, time.April, 9, 23, 30, 0, 0, time.FixedZone("X", 5*3600))
	assert.Equal(t, d, DateOf(local))
}

func TestDateScanAndJSON(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-12-31"))
	assert.Equal(t, NewDate(2024, time.December, 31), d)

	require.NoError(t, d.Scan([]byte("2024-01-02 00:00:00+00:00")))
	assert.Equal(t, NewDate(2024, time.January, 2), d)

	require.NoError(t, d.Scan(time.Date(2023, time.May, 5, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, NewDate(2023, time.May, 5), d)

	assert.Error(t, d.Scan(42))

	data, err := json.Marshal(NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-03-01"`, string(data))

	var back Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, NewDate(2025, time.March, 1), back)
}
