package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundDays(t *testing.T) {
	tests := []struct {
		name  string
		hours float64
		want  int
	}{
		{"sub-day rounds up to one", 4, 1},
		{"just under half a day", 11.9, 1},
		{"half a day rounds to one", 12, 1},
		{"just over a day and a half", 36.1, 2},
		{"exactly two days", 48, 2},
		{"two and a half days rounds up", 60, 3},
		{"week", 168, 7},
		{"zero clamps to one", 0, 1},
		{"negative clamps to one", -5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundDays(tt.hours))
		})
	}
}

func TestBreakEvenOrdering(t *testing.T) {
	const strike, roi = 60000.0, 0.002

	call := BreakEven(strike, roi, OptionTypeCall)
	put := BreakEven(strike, roi, OptionTypePut)

	assert.Greater(t, call, strike, "CALL break-even sits above strike")
	assert.Less(t, put, strike, "PUT break-even sits below strike")
	assert.InDelta(t, 60120, call, 1e-9)
	assert.InDelta(t, 59880, put, 1e-9)
}

func TestPositionRoi(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pos := Position{
		APR:        0.365, // 0.1% per day
		SettleDate: now.Add(72 * time.Hour),
	}
	assert.InDelta(t, 0.003, pos.Roi(now), 1e-12, "three rounded days at 0.1%/day")
}

func TestPositionNotional(t *testing.T) {
	put := Position{OptionType: OptionTypePut, SubscriptionAmount: 30000, StrikePrice: 60000}
	assert.InDelta(t, 0.5, put.Notional(), 1e-12, "PUT notional converts stable at strike")

	call := Position{OptionType: OptionTypeCall, SubscriptionAmount: 0.5, StrikePrice: 60000}
	assert.InDelta(t, 0.5, call.Notional(), 1e-12, "CALL notional is already in the asset")
}
