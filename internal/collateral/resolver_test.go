package collateral

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/cache/memory"
	"github.com/alanyoungcy/dualhedge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type borrowCall struct {
	coin             string
	amount           float64
	collateralCoin   string
	collateralAmount float64
}

// borrowExchange fails BorrowCoins for every coin listed in failCoins.
type borrowExchange struct {
	calls     []borrowCall
	failCoins map[string]bool
}

func (e *borrowExchange) BorrowCoins(_ context.Context, coin string, amount float64, collateralCoin string, collateralAmount float64) (domain.BorrowResult, error) {
	e.calls = append(e.calls, borrowCall{coin, amount, collateralCoin, collateralAmount})
	if e.failCoins[collateralCoin] {
		return domain.BorrowResult{}, errors.New("insufficient collateral balance")
	}
	return domain.BorrowResult{
		TranID:           "t1",
		Coin:             coin,
		Amount:           amount,
		CollateralCoin:   collateralCoin,
		CollateralAmount: collateralAmount,
	}, nil
}

func (e *borrowExchange) FetchPositions(context.Context) ([]domain.Position, error) { return nil, nil }
func (e *borrowExchange) FetchProducts(context.Context, string, domain.OptionType) ([]domain.Product, error) {
	return nil, nil
}
func (e *borrowExchange) FetchSpotPrices(context.Context, []string) (map[string]float64, error) {
	return nil, nil
}
func (e *borrowExchange) FetchSpotBalances(context.Context) (map[string]float64, error) {
	return nil, nil
}
func (e *borrowExchange) Subscribe(context.Context, string, float64) (domain.SubscribeResult, error) {
	return domain.SubscribeResult{}, nil
}
func (e *borrowExchange) OpenMarginPosition(context.Context, string, domain.MarginSide, float64) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}
func (e *borrowExchange) SymbolFilter(context.Context, string) (domain.SymbolFilter, error) {
	return domain.SymbolFilter{}, nil
}

func registry() []domain.CollateralAsset {
	return []domain.CollateralAsset{
		{Coin: "ETH", Enabled: true, MinAmount: 0.005, MaxAmount: 50, LTV: 0.70, Priority: 3},
		{Coin: "USDT", Enabled: true, MinAmount: 10, MaxAmount: 100_000, LTV: 0.85, Priority: 1},
		{Coin: "BTC", Enabled: true, MinAmount: 0.0002, MaxAmount: 5, LTV: 0.75, Priority: 2},
	}
}

func seededPrices(t *testing.T) domain.PriceCache {
	t.Helper()
	pc := memory.NewPriceCache()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, pc.SetPrice(ctx, "BTCUSDT", 60000, now))
	require.NoError(t, pc.SetPrice(ctx, "ETHUSDT", 3000, now))
	return pc
}

func TestBorrowUsesHighestPriorityCandidate(t *testing.T) {
	exch := &borrowExchange{}
	r := NewResolver(registry(), exch, seededPrices(t), "USDT", discardLog)

	res, err := r.Borrow(context.Background(), "BTC", 0.1)
	require.NoError(t, err)
	assert.Equal(t, "USDT", res.CollateralCoin, "priority 1 wins")

	require.Len(t, exch.calls, 1)
	// 0.1 BTC at 60000 is 6000 USDT; over an 0.85 LTV that takes 7058.82.
	assert.InDelta(t, 0.1*60000/0.85, exch.calls[0].collateralAmount, 1e-6)
}

func TestBorrowNeverPledgesTheBorrowedCoin(t *testing.T) {
	exch := &borrowExchange{failCoins: map[string]bool{"BTC": true, "ETH": true}}
	r := NewResolver(registry(), exch, seededPrices(t), "USDT", discardLog)

	_, err := r.Borrow(context.Background(), "USDT", 5000)
	require.ErrorIs(t, err, domain.ErrCollateralExhausted)

	for _, c := range exch.calls {
		assert.NotEqual(t, "USDT", c.collateralCoin, "borrowed coin excluded from its own collateral")
	}
	require.Len(t, exch.calls, 2, "both remaining candidates tried in priority order")
	assert.Equal(t, "BTC", exch.calls[0].collateralCoin)
	assert.Equal(t, "ETH", exch.calls[1].collateralCoin)
}

func TestBorrowFallsBackThroughChain(t *testing.T) {
	exch := &borrowExchange{failCoins: map[string]bool{"USDT": true}}
	r := NewResolver(registry(), exch, seededPrices(t), "USDT", discardLog)

	res, err := r.Borrow(context.Background(), "BTC", 0.01)
	require.NoError(t, err)
	assert.Equal(t, "ETH", res.CollateralCoin, "USDT failed, BTC is excluded, ETH is next")

	require.Len(t, exch.calls, 2)
	// 0.01 BTC = 600 USDT; over 0.70 LTV in ETH at 3000: 0.2857 ETH.
	assert.InDelta(t, 0.01*60000/0.70/3000, exch.calls[1].collateralAmount, 1e-9)
}

func TestBorrowSizingRaisesToMinimum(t *testing.T) {
	exch := &borrowExchange{}
	r := NewResolver(registry(), exch, seededPrices(t), "USDT", discardLog)

	// Borrowing 1 USDT needs about 1.18 USDT of collateral, below the 10
	// USDT candidate minimum.
	_, err := r.Borrow(context.Background(), "ETH", 1.0/3000)
	require.NoError(t, err)
	require.NotEmpty(t, exch.calls)
	assert.InDelta(t, 10, exch.calls[0].collateralAmount, 1e-9, "raised to the candidate minimum")
}

func TestBorrowSkipsCandidateOverMaximum(t *testing.T) {
	assets := registry()
	for i := range assets {
		if assets[i].Coin == "USDT" {
			assets[i].MaxAmount = 100
		}
	}
	exch := &borrowExchange{}
	r := NewResolver(assets, exch, seededPrices(t), "USDT", discardLog)

	// 0.1 BTC needs about 7059 USDT, far over the 100 USDT cap: skip to ETH.
	res, err := r.Borrow(context.Background(), "BTC", 0.1)
	require.NoError(t, err)
	assert.Equal(t, "ETH", res.CollateralCoin)
}

func TestBorrowSkipsDisabledAndUnpriced(t *testing.T) {
	assets := registry()
	for i := range assets {
		if assets[i].Coin == "USDT" {
			assets[i].Enabled = false
		}
	}
	exch := &borrowExchange{}
	pc := memory.NewPriceCache()
	require.NoError(t, pc.SetPrice(context.Background(), "BTCUSDT", 60000, time.Now()))
	// No ETH price cached.
	r := NewResolver(assets, exch, pc, "USDT", discardLog)

	res, err := r.Borrow(context.Background(), "BTC", 0.01)
	require.ErrorIs(t, err, domain.ErrCollateralExhausted, "BTC excluded, USDT disabled, ETH unpriced")
	assert.Zero(t, res.Amount)
	assert.Empty(t, exch.calls)
}

func TestBorrowInversePairPricing(t *testing.T) {
	exch := &borrowExchange{}
	pc := memory.NewPriceCache()
	ctx := context.Background()
	// Only the inverse pair is cached: USDT per 1 unit is 1/price.
	require.NoError(t, pc.SetPrice(ctx, "USDTBTC", 1.0/60000, time.Now()))
	assets := []domain.CollateralAsset{
		{Coin: "BTC", Enabled: true, MinAmount: 0, MaxAmount: 0, LTV: 0.75, Priority: 1},
	}
	r := NewResolver(assets, exch, pc, "USDT", discardLog)

	_, err := r.Borrow(ctx, "USDT", 6000)
	require.NoError(t, err)
	require.Len(t, exch.calls, 1)
	// 6000 USDT over 0.75 LTV at 60000 per BTC: 0.1333 BTC.
	assert.InDelta(t, 6000/0.75/60000, exch.calls[0].collateralAmount, 1e-6)
}
