package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2026-03-01 05:00 in UTC+9 is still February in UTC.
	got := MonthStart(time.Date(2026, 3, 1, 5, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got)

	got = MonthStart(time.Date(2026, 10, 18, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestToken_ValidDecimals(t *testing.T) {
	six, neg := 6, -1
	assert.True(t, (&Token{Decimals: &six}).ValidDecimals())
	assert.False(t, (&Token{Decimals: &neg}).ValidDecimals())
	assert.False(t, (&Token{}).ValidDecimals())
	assert.False(t, (*Token)(nil).ValidDecimals())
}

func TestRateLimitWindow_Cursor(t *testing.T) {
	id := "1850000000000000001"
	assert.Equal(t, id, (&RateLimitWindow{LastMentionID: &id}).Cursor())
	assert.Equal(t, "", (&RateLimitWindow{}).Cursor())
	assert.Equal(t, "", (*RateLimitWindow)(nil).Cursor())
}
