package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// positionsPageSize is the page size for the positions endpoint. The caps
// keep open positions well under one page, but pagination is handled anyway.
const positionsPageSize = 100

// FetchProducts lists subscribable dual-investment products for the given
// underlying and option type. Products flagged non-purchasable are dropped
// here so the pipeline never scores them.
func (c *Client) FetchProducts(ctx context.Context, underlying string, ot domain.OptionType) ([]domain.Product, error) {
	params := url.Values{}
	params.Set("optionType", string(ot))
	if ot == domain.OptionTypePut {
		params.Set("exercisedCoin", underlying)
		params.Set("investCoin", c.stableCoin)
	} else {
		params.Set("exercisedCoin", c.stableCoin)
		params.Set("investCoin", underlying)
	}
	params.Set("pageSize", "100")
	params.Set("pageIndex", "1")

	body, err := c.doSigned(ctx, http.MethodGet, "/sapi/v1/dci/product/list", params)
	if err != nil {
		return nil, fmt.Errorf("binance: list products %s %s: %w", underlying, ot, err)
	}

	var resp apiProductList
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("binance: decode product list: %w", err)
	}

	products := make([]domain.Product, 0, len(resp.List))
	for i := range resp.List {
		if !resp.List[i].CanPurchase {
			continue
		}
		products = append(products, resp.List[i].ToDomain())
	}
	return products, nil
}

// FetchPositions returns every open position with a confirmed purchase. The
// exchange paginates; all pages are drained so reconciliation sees the full
// set.
func (c *Client) FetchPositions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("pageSize", strconv.Itoa(positionsPageSize))
		params.Set("pageIndex", strconv.Itoa(page))

		body, err := c.doSigned(ctx, http.MethodGet, "/sapi/v1/dci/product/positions", params)
		if err != nil {
			return nil, fmt.Errorf("binance: list positions page %d: %w", page, err)
		}

		var resp apiPositionList
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("binance: decode positions: %w", err)
		}

		for i := range resp.List {
			if resp.List[i].PurchaseStatus != "PURCHASE_SUCCESS" {
				continue
			}
			out = append(out, resp.List[i].ToDomain())
		}

		if len(resp.List) < positionsPageSize {
			return out, nil
		}
	}
}

// FetchSpotPrices returns the current spot price for each requested pair.
func (c *Client) FetchSpotPrices(ctx context.Context, pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return map[string]float64{}, nil
	}

	symbols, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("binance: encode symbols: %w", err)
	}
	params := url.Values{}
	params.Set("symbols", string(symbols))

	body, err := c.doPublic(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return nil, fmt.Errorf("binance: ticker prices: %w", err)
	}

	var resp []apiTickerPrice
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("binance: decode ticker prices: %w", err)
	}

	prices := make(map[string]float64, len(resp))
	for _, t := range resp {
		prices[t.Symbol] = float64(t.Price)
	}
	return prices, nil
}

// FetchSpotBalances returns the free balance per coin, skipping dust-free
// zero entries.
func (c *Client) FetchSpotBalances(ctx context.Context) (map[string]float64, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("binance: account: %w", err)
	}

	var resp apiAccount
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("binance: decode account: %w", err)
	}

	balances := make(map[string]float64)
	for _, b := range resp.Balances {
		if b.Free > 0 {
			balances[b.Asset] = float64(b.Free)
		}
	}
	return balances, nil
}
