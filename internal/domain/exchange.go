package domain

import "context"

// Exchange is the authenticated REST surface the bot depends on. The
// concrete implementation lives in internal/platform/binance; everything
// above it programs against this interface so the pipeline, dispatcher, and
// hedge machine can be tested with fakes.
type Exchange interface {
	// FetchPositions returns all successfully purchased, still-open
	// dual-investment positions.
	FetchPositions(ctx context.Context) ([]Position, error)
	// FetchProducts lists subscribable products for the given underlying and
	// option type.
	FetchProducts(ctx context.Context, underlying string, ot OptionType) ([]Product, error)
	// FetchSpotPrices returns current spot prices for the given pairs.
	FetchSpotPrices(ctx context.Context, pairs []string) (map[string]float64, error)
	// FetchSpotBalances returns free balances per coin.
	FetchSpotBalances(ctx context.Context) (map[string]float64, error)
	// Subscribe commits amount of the product's invest coin.
	Subscribe(ctx context.Context, productID string, amount float64) (SubscribeResult, error)
	// OpenMarginPosition opens a margin position for hedging.
	OpenMarginPosition(ctx context.Context, symbol string, side MarginSide, quantity float64) (OrderResult, error)
	// BorrowCoins borrows amount of coin against the given collateral.
	BorrowCoins(ctx context.Context, coin string, amount float64, collateralCoin string, collateralAmount float64) (BorrowResult, error)
	// SymbolFilter returns lot-size precision rules for a margin symbol.
	SymbolFilter(ctx context.Context, symbol string) (SymbolFilter, error)
}
