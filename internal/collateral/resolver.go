// Package collateral picks a borrowing source from the configured,
// priority-ordered collateral registry and drives the borrow call with
// fallback across candidates.
package collateral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// Resolver resolves borrow requests against the collateral registry.
type Resolver struct {
	assets     []domain.CollateralAsset
	exchange   domain.Exchange
	prices     domain.PriceCache
	stableCoin string
	log        *slog.Logger
}

// NewResolver creates a Resolver. assets is the full configured registry;
// disabled entries are filtered at resolution time.
func NewResolver(assets []domain.CollateralAsset, exchange domain.Exchange, prices domain.PriceCache, stableCoin string, logger *slog.Logger) *Resolver {
	return &Resolver{
		assets:     assets,
		exchange:   exchange,
		prices:     prices,
		stableCoin: stableCoin,
		log:        logger.With("component", "collateral"),
	}
}

// Borrow acquires amount of coin against the first collateral candidate
// that prices, sizes, and clears the exchange call. Candidates are tried in
// priority order; the coin being borrowed is never its own collateral.
// Exhausting every candidate returns domain.ErrCollateralExhausted.
func (r *Resolver) Borrow(ctx context.Context, coin string, amount float64) (domain.BorrowResult, error) {
	candidates := r.candidates(coin)
	if len(candidates) == 0 {
		return domain.BorrowResult{}, fmt.Errorf("collateral: borrow %s: no enabled candidates: %w", coin, domain.ErrCollateralExhausted)
	}

	borrowedPrice, ok := r.priceInStable(ctx, coin)
	if !ok {
		return domain.BorrowResult{}, fmt.Errorf("collateral: borrow %s: no price for borrowed coin: %w", coin, domain.ErrCollateralExhausted)
	}

	var lastErr error
	for _, cand := range candidates {
		collateralPrice, ok := r.priceInStable(ctx, cand.Coin)
		if !ok {
			r.log.Warn("collateral candidate skipped, no price", "coin", cand.Coin)
			continue
		}

		collateralAmount := amount * borrowedPrice / cand.LTV / collateralPrice
		if collateralAmount < cand.MinAmount {
			collateralAmount = cand.MinAmount
		}
		if cand.MaxAmount > 0 && collateralAmount > cand.MaxAmount {
			r.log.Warn("collateral candidate skipped, exceeds max",
				"coin", cand.Coin, "needed", collateralAmount, "max", cand.MaxAmount)
			continue
		}

		res, err := r.exchange.BorrowCoins(ctx, coin, amount, cand.Coin, collateralAmount)
		if err != nil {
			r.log.Warn("borrow attempt failed",
				"coin", coin, "collateral", cand.Coin, "collateral_amount", collateralAmount, "error", err)
			lastErr = err
			continue
		}

		r.log.Info("borrowed",
			"coin", coin, "amount", amount,
			"collateral", cand.Coin, "collateral_amount", collateralAmount, "tran_id", res.TranID)
		return res, nil
	}

	if lastErr != nil {
		return domain.BorrowResult{}, fmt.Errorf("collateral: borrow %s: %w (last: %v)", coin, domain.ErrCollateralExhausted, lastErr)
	}
	return domain.BorrowResult{}, fmt.Errorf("collateral: borrow %s: %w", coin, domain.ErrCollateralExhausted)
}

// candidates returns enabled collateral assets in priority order, excluding
// the borrowed coin itself.
func (r *Resolver) candidates(borrowed string) []domain.CollateralAsset {
	out := make([]domain.CollateralAsset, 0, len(r.assets))
	for _, a := range r.assets {
		if !a.Enabled || a.Coin == borrowed {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// priceInStable resolves a coin's price in the stable coin: 1 for the
// stable itself, the direct pair when cached, otherwise the inverse pair.
func (r *Resolver) priceInStable(ctx context.Context, coin string) (float64, bool) {
	if coin == r.stableCoin {
		return 1, true
	}
	if price, _, err := r.prices.GetPrice(ctx, coin+r.stableCoin); err == nil && price > 0 {
		return price, true
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.log.Warn("price lookup failed", "pair", coin+r.stableCoin, "error", err)
	}
	if price, _, err := r.prices.GetPrice(ctx, r.stableCoin+coin); err == nil && price > 0 {
		return 1 / price, true
	}
	return 0, false
}
