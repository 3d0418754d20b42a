package domain

import (
	"time"
)

// OptionType distinguishes the two dual-investment contract directions.
type OptionType string

const (
	OptionTypePut  OptionType = "PUT"
	OptionTypeCall OptionType = "CALL"
)

// Product is a subscribable dual-investment offer as listed by the exchange,
// with the live spot price joined in by the snapshot assembler. Products are
// immutable and live only within a single cycle.
type Product struct {
	ID            string
	OptionType    OptionType
	ExercisedCoin string // coin received if the option settles in-the-money
	InvestCoin    string // coin committed at subscription
	StrikePrice   float64
	APR           float64 // annualized, e.g. 0.20 for 20%
	SettleDate    time.Time
	SpotPrice     float64
	MinSubscribe  float64
	MaxSubscribe  float64
}

// Pair returns the trading pair the product references, e.g. "BTCUSDT".
// For a PUT the invest coin is the stable side; for a CALL it is the asset.
func (p Product) Pair() string {
	if p.OptionType == OptionTypePut {
		return p.ExercisedCoin + p.InvestCoin
	}
	return p.InvestCoin + p.ExercisedCoin
}

// Underlying returns the non-stable coin of the product.
func (p Product) Underlying() string {
	if p.OptionType == OptionTypePut {
		return p.ExercisedCoin
	}
	return p.InvestCoin
}

// HoursToExpiry returns the remaining lifetime of the product at now.
func (p Product) HoursToExpiry(now time.Time) float64 {
	return p.SettleDate.Sub(now).Hours()
}

// ScoredProduct is a Product that survived the filter pipeline, annotated
// with the metrics the dispatcher and operators care about.
type ScoredProduct struct {
	Product
	RoundedDays   int
	TargetRoi     float64
	ActualRoi     float64
	BreakEven     float64
	BufferPercent float64
	AbsRatio      float64
}

/// Margin is the selection margin used for ranking and cap truncation:
// how far the product's ROI clears its target.
func (s ScoredProduct) Margin() float64 {
	return s.ActualRoi - s.TargetRoi
}
