// Package selection turns a market snapshot into a ranked, risk-bounded
// execution list. ROI requirements come from injectable day-dependent
// curves so the risk policy can be swapped or tested in isolation.
package selection

import (
	"math"

	"github.com/alanyoungcy/dualhedge/internal/config"
)

// Curve maps a rounded day count to a required ROI. Curves are pure
// functions of their parameters; the pipeline never hardcodes one.
type Curve func(days int) float64

// ShortTermCurve builds the target curve for products inside the short-term
// boundary: a bounded-below, slowly exponential function of days,
//
//	max(base, base*growth^d), capped.
func ShortTermCurve(cfg config.SelectionConfig) Curve {
	return func(days int) float64 {
		if days < 1 {
			days = 1
		}
		roi := cfg.ShortTermBase * math.Pow(cfg.ShortTermGrowth, float64(days))
		if roi < cfg.ShortTermBase {
			roi = cfg.ShortTermBase
		}
		if roi > cfg.ShortTermCap {
			roi = cfg.ShortTermCap
		}
		return roi
	}
}

// LongTermCurve builds the target curve for products past the short-term
// boundary: a concave, saturating function of days,
//
//	a*sqrt(d) + b*ln(d), capped.
func LongTermCurve(cfg config.SelectionConfig) Curve {
	return func(days int) float64 {
		if days < 1 {
			days = 1
		}
		d := float64(days)
		roi := cfg.LongTermSqrtCoeff*math.Sqrt(d) + cfg.LongTermLogCoeff*math.Log(d)
		if roi < 0 {
			roi = 0
		}
		if roi > cfg.LongTermCap {
			roi = cfg.LongTermCap
		}
		return roi
	}
}

// FloorCurve builds the minimum-ROI safety floor, a smaller-slope linear
// curve applied after the target check as a second, more conservative gate,
//
//	floorBase + floorSlope*d, capped.
func FloorCurve(cfg config.SelectionConfig) Curve {
	return func(days int) float64 {
		if days < 1 {
			days = 1
		}
		roi := cfg.FloorBase + cfg.FloorSlope*float64(days)
		if roi > cfg.FloorCap {
			roi = cfg.FloorCap
		}
		return roi
	}
}
