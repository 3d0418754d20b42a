// Package executor turns the ranked execution list into subscription calls,
// applying allocation splits, balance preconditions with collateral-borrow
// fallback, and a single bounded retry for stale-rate rejections.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/collateral"
	"github.com/alanyoungcy/dualhedge/internal/config"
	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// Alerter receives execution notifications. Nil-safe.
type Alerter interface {
	SubscriptionExecuted(ctx context.Context, p domain.ScoredProduct, amount float64) error
	BorrowFailed(ctx context.Context, coin string, amount float64, err error) error
}

// Dispatcher executes subscriptions for scored products.
type Dispatcher struct {
	cfg        config.ExecutionConfig
	exchange   domain.Exchange
	collateral *collateral.Resolver
	alerter    Alerter
	log        *slog.Logger
}

// NewDispatcher creates a Dispatcher. alerter may be nil.
func NewDispatcher(cfg config.ExecutionConfig, exchange domain.Exchange, resolver *collateral.Resolver, alerter Alerter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		exchange:   exchange,
		collateral: resolver,
		alerter:    alerter,
		log:        logger.With("component", "executor"),
	}
}

// Execute walks the ranked list in order and subscribes to each product,
// tracking spend against a local copy of the balances. Per-product failures
// are logged and skipped; Execute returns the number of confirmed
// subscriptions.
func (d *Dispatcher) Execute(ctx context.Context, ranked []domain.ScoredProduct, balances map[string]float64) int {
	free := make(map[string]float64, len(balances))
	for coin, amt := range balances {
		free[coin] = amt
	}

	executed := 0
	for _, sp := range ranked {
		if err := ctx.Err(); err != nil {
			d.log.Warn("execution aborted", "error", err)
			return executed
		}

		amount, ok := d.allocate(sp, free[sp.InvestCoin])
		if !ok {
			continue
		}

		// Top up via collateral borrow when the free balance cannot cover
		// the allocation.
		if shortfall := amount - free[sp.InvestCoin]; shortfall > 0 {
			if _, err := d.collateral.Borrow(ctx, sp.InvestCoin, shortfall); err != nil {
				d.log.Warn("borrow fallback failed, product skipped",
					"product_id", sp.ID, "coin", sp.InvestCoin, "shortfall", shortfall, "error", err)
				if d.alerter != nil {
					_ = d.alerter.BorrowFailed(ctx, sp.InvestCoin, shortfall, err)
				}
				continue
			}
			free[sp.InvestCoin] = amount
		}

		if !d.subscribe(ctx, sp, amount) {
			continue
		}

		free[sp.InvestCoin] -= amount
		executed++
	}
	return executed
}

// allocate sizes one subscription: a configured fraction of the free invest
// balance, clamped to both the bot's and the product's min/max bounds. The
// result may exceed the free balance; Execute covers the gap with the
// collateral borrow fallback. Returns false when no valid amount exists.
func (d *Dispatcher) allocate(sp domain.ScoredProduct, freeBalance float64) (float64, bool) {
	minAmount := math.Max(d.cfg.MinSubscribe, sp.MinSubscribe)
	maxAmount := d.cfg.MaxSubscribe
	if sp.MaxSubscribe > 0 && (maxAmount <= 0 || sp.MaxSubscribe < maxAmount) {
		maxAmount = sp.MaxSubscribe
	}
	if maxAmount > 0 && minAmount > maxAmount {
		d.log.Debug("product skipped, min/max bounds conflict",
			"product_id", sp.ID, "min", minAmount, "max", maxAmount)
		return 0, false
	}

	amount := freeBalance * d.cfg.AllocationFraction
	if maxAmount > 0 && amount > maxAmount {
		amount = maxAmount
	}
	if amount < minAmount {
		amount = minAmount
	}
	return amount, true
}

// subscribe submits the subscription, retrying exactly once on a stale-rate
// rejection against a freshly fetched matching product.
func (d *Dispatcher) subscribe(ctx context.Context, sp domain.ScoredProduct, amount float64) bool {
	res, err := d.exchange.Subscribe(ctx, sp.ID, amount)
	if errors.Is(err, domain.ErrStaleRate) {
		d.log.Info("stale rate, refetching product", "product_id", sp.ID, "pair", sp.Pair())
		match, ok := d.refetchMatch(ctx, sp)
		if !ok {
			d.log.Warn("no matching product after stale rate", "product_id", sp.ID)
			return false
		}
		res, err = d.exchange.Subscribe(ctx, match.ID, amount)
	}
	if err != nil {
		d.log.Warn("subscription failed",
			"product_id", sp.ID, "pair", sp.Pair(), "amount", amount, "error", err)
		return false
	}

	d.log.Info("subscribed",
		"product_id", res.ProductID, "position_id", res.PositionID,
		"pair", sp.Pair(), "amount", amount,
		"apr", sp.APR, "strike", sp.StrikePrice,
		"buffer_percent", sp.BufferPercent)

	if d.alerter != nil {
		if err := d.alerter.SubscriptionExecuted(ctx, sp, amount); err != nil {
			d.log.Warn("subscription notification failed", "product_id", sp.ID, "error", err)
		}
	}
	return true
}

// refetchMatch re-fetches the product list and finds a replacement matching
// the original by underlying, option type, settle coin, settle date, and an
// APR no worse than the original.
func (d *Dispatcher) refetchMatch(ctx context.Context, sp domain.ScoredProduct) (domain.Product, bool) {
	products, err := d.exchange.FetchProducts(ctx, sp.Underlying(), sp.OptionType)
	if err != nil {
		d.log.Warn("product refetch failed", "underlying", sp.Underlying(), "error", err)
		return domain.Product{}, false
	}
	for _, p := range products {
		if p.OptionType != sp.OptionType {
			continue
		}
		if p.ExercisedCoin != sp.ExercisedCoin || p.InvestCoin != sp.InvestCoin {
			continue
		}
		if !sameSettleTime(p.SettleDate, sp.SettleDate) {
			continue
		}
		if p.APR < sp.APR {
			continue
		}
		return p, true
	}
	return domain.Product{}, false
}

func sameSettleTime(a, b time.Time) bool {
	return a.Equal(b)
}
