// Package snapshot assembles the per-cycle market view: product listings
// per asset and option type, spot prices, and free balances, fetched with
// bounded concurrency and joined into one immutable value.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// Assembler fetches and joins the market snapshot.
type Assembler struct {
	exchange   domain.Exchange
	prices     domain.PriceCache
	assets     []string
	stableCoin string
	limit      int
	log        *slog.Logger
}

// NewAssembler creates an Assembler over the given assets. limit bounds the
// per-pair fan-out of product and price fetches.
func NewAssembler(exchange domain.Exchange, prices domain.PriceCache, assets []string, stableCoin string, limit int, logger *slog.Logger) *Assembler {
	if limit < 1 {
		limit = 1
	}
	return &Assembler{
		exchange:   exchange,
		prices:     prices,
		assets:     assets,
		stableCoin: stableCoin,
		limit:      limit,
		log:        logger.With("component", "snapshot"),
	}
}

// Assemble fetches prices, products, and balances and joins them. Per-asset
// product fetch failures are logged and excluded; the snapshot proceeds with
// what succeeded. A failed price or balance fetch fails the whole assembly
// because everything downstream depends on them.
func (a *Assembler) Assemble(ctx context.Context) (domain.MarketSnapshot, error) {
	pairs := make([]string, len(a.assets))
	for i, asset := range a.assets {
		pairs[i] = asset + a.stableCoin
	}

	prices, err := a.exchange.FetchSpotPrices(ctx, pairs)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("snapshot: spot prices: %w", err)
	}
	if len(prices) == 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("snapshot: spot prices: %w", domain.ErrNoData)
	}
	now := time.Now().UTC()
	for pair, price := range prices {
		if err := a.prices.SetPrice(ctx, pair, price, now); err != nil {
			a.log.Warn("price cache write failed", "pair", pair, "error", err)
		}
	}

	balances, err := a.exchange.FetchSpotBalances(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("snapshot: balances: %w", err)
	}

	products, err := a.fetchProducts(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	// Join spot prices into products; a product whose pair has no price is
	// dropped here so the pipeline never scores it.
	joined := products[:0]
	for _, p := range products {
		price, ok := prices[p.Pair()]
		if !ok || price <= 0 {
			a.log.Warn("product dropped, no spot price", "product_id", p.ID, "pair", p.Pair())
			continue
		}
		p.SpotPrice = price
		joined = append(joined, p)
	}

	return domain.MarketSnapshot{
		Products:  joined,
		Prices:    prices,
		Balances:  balances,
		FetchedAt: now,
	}, nil
}

// fetchProducts fans out one fetch per (asset, option type) with bounded
// concurrency. Individual failures are logged and excluded; the group error
// is reserved for context cancellation so one bad asset cannot sink the
// cycle.
func (a *Assembler) fetchProducts(ctx context.Context) ([]domain.Product, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)

	var mu sync.Mutex
	var products []domain.Product

	for _, asset := range a.assets {
		for _, ot := range []domain.OptionType{domain.OptionTypePut, domain.OptionTypeCall} {
			asset, ot := asset, ot
			g.Go(func() error {
				batch, err := a.exchange.FetchProducts(gctx, asset, ot)
				if err != nil {
					a.log.Warn("product fetch failed", "asset", asset, "option_type", ot, "error", err)
					return nil
				}
				mu.Lock()
				products = append(products, batch...)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot: product fan-out: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: product fan-out: %w", err)
	}
	return products, nil
}
