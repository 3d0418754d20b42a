package domain

import "time"

// MarketSnapshot is the per-cycle view of the market: product listings with
// spot prices joined in, plus the account state fetched alongside them.
// A snapshot is assembled once per cycle and never mutated afterwards.
type MarketSnapshot struct {
	Products  []Product
	Prices    map[string]float64 // pair -> spot price
	Balances  map[string]float64 // coin -> free amount
	FetchedAt time.Time
}

// Age returns how old the snapshot is at now.
func (m MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(m.FetchedAt)
}
