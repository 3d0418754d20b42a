package domain

import "time"

// Position is an open, exchange-confirmed dual-investment contract. The
// exchange's position list is the source of truth; positions disappear from
// it once settled or closed.
type Position struct {
	ID                 string
	Pair               string
	OptionType         OptionType
	SubscriptionAmount float64
	StrikePrice        float64
	SettleDate         time.Time
	APR                float64
	PurchaseTime       time.Time
}

// HoursToExpiry returns the remaining time to settlement at now.
func (p Position) HoursToExpiry(now time.Time) float64 {
	return p.SettleDate.Sub(now).Hours()
}

// Roi returns the simple (non-compounded) accumulated ROI of the position:
// daily APR scaled by the rounded number of days the contract runs for.
func (p Position) Roi(now time.Time) float64 {
	days := RoundDays(p.HoursToExpiry(now))
	return p.APR / 365 * float64(days)
}

// BreakEven returns the spot price at which the position's accumulated ROI
// exactly offsets the adverse move. CALL break-even sits above strike, PUT
// below.
func (p Position) BreakEven(roi float64) float64 {
	return BreakEven(p.StrikePrice, roi, p.OptionType)
}

// Notional returns the position's notional in units of the underlying asset.
// PUT subscriptions are denominated in the stable invest coin and convert at
// the strike; CALL subscriptions are already in the asset.
func (p Position) Notional() float64 {
	if p.OptionType == OptionTypePut && p.StrikePrice > 0 {
		return p.SubscriptionAmount / p.StrikePrice
	}
	return p.SubscriptionAmount
}

// ActivePosition pairs an exchange-reported position with its locally
// tracked hedge record. Produced by ledger reconciliation each cycle.
type ActivePosition struct {
	Position
	Hedge HedgeRecord
}

// BreakEven computes strike*(1+roi) for a CALL and strike*(1-roi) for a PUT.
func BreakEven(strike, roi float64, ot OptionType) float64 {
	if ot == OptionTypeCall {
		return strike * (1 + roi)
	}
	return strike * (1 - roi)
}

// RoundDays converts hours to the nearest whole day, never below one.
// Rounding (not floor or ceil) keeps multi-day buckets centered so the ROI
// curves are neither systematically optimistic nor pessimistic.
func RoundDays(hours float64) int {
	d := int(hours/24 + 0.5)
	if d < 1 {
		d = 1
	}
	return d
}
