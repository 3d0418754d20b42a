package hedge

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// RoundLot snaps a hedge quantity to the instrument's step size, rounding
// toward zero. Rounding up is never allowed: it would hedge more than the
// position's notional. Quantities that land below the exchange minimum are
// rejected with domain.ErrBelowMinQuantity.
func RoundLot(quantity float64, filter domain.SymbolFilter) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("hedge: quantity %v: %w", quantity, domain.ErrBelowMinQuantity)
	}
	rounded := quantity
	if filter.StepSize > 0 {
		// The tiny tolerance keeps exact step multiples from losing a whole
		// step to float division error.
		steps := math.Floor(quantity/filter.StepSize + 1e-9)
		rounded = steps * filter.StepSize
	}
	if rounded < filter.MinQuantity || rounded <= 0 {
		return 0, fmt.Errorf("hedge: %s quantity %v below minimum %v: %w",
			filter.Symbol, rounded, filter.MinQuantity, domain.ErrBelowMinQuantity)
	}
	return rounded, nil
}

// hedgeSide returns the margin order direction that offsets the adverse
// move: a CALL loses upside when price rises, so the hedge buys; a PUT is
// assigned on the way down, so the hedge sells.
func hedgeSide(ot domain.OptionType) domain.MarginSide {
	if ot == domain.OptionTypeCall {
		return domain.MarginSideBuy
	}
	return domain.MarginSideSell
}

// stepFraction returns the share of notional to hedge when moving to the
// target status, given the configured step-1 fraction. The FULL step covers
// whatever step 1 left unhedged.
func stepFraction(target domain.HedgeStatus, step1 float64) float64 {
	switch target {
	case domain.HedgeStep1:
		return step1
	case domain.HedgeFull:
		return 1 - step1
	default:
		return 0
	}
}
