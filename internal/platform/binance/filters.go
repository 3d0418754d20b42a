package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// SymbolFilter returns the lot-size rules for a margin symbol. Exchange info
// changes rarely, so results are cached for filtersTTL and refreshed lazily.
func (c *Client) SymbolFilter(ctx context.Context, symbol string) (domain.SymbolFilter, error) {
	c.filterMu.Lock()
	if f, ok := c.filters[symbol]; ok && time.Since(c.filtersAt) < c.filtersTTL {
		c.filterMu.Unlock()
		return f, nil
	}
	c.filterMu.Unlock()

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doPublic(ctx, "/api/v3/exchangeInfo", params)
	if err != nil {
		return domain.SymbolFilter{}, fmt.Errorf("binance: exchange info %s: %w", symbol, err)
	}

	var resp apiExchangeInfo
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SymbolFilter{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}

	for _, s := range resp.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, r := range s.Filters {
			if r.FilterType != "LOT_SIZE" {
				continue
			}
			f := domain.SymbolFilter{
				Symbol:      symbol,
				StepSize:    float64(r.StepSize),
				MinQuantity: float64(r.MinQty),
			}
			c.filterMu.Lock()
			c.filters[symbol] = f
			c.filtersAt = time.Now()
			c.filterMu.Unlock()
			return f, nil
		}
	}

	return domain.SymbolFilter{}, fmt.Errorf("binance: exchange info %s: %w", symbol, domain.ErrNotFound)
}
