package domain

import (
	"context"
	"time"
)

// LedgerEntry is the durable record of a position and its hedge state. It is
// keyed by the exchange-assigned position id. Entries outlive the position:
// once the exchange stops reporting the position the entry becomes historical
// and is only removed by the maintenance/archival path, never by
// reconciliation.
type LedgerEntry struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	OptionType   OptionType  `json:"optionType"`
	StrikePrice  float64     `json:"strikePrice"`
	Amount       float64     `json:"amount"`
	Roi          float64     `json:"roi"`
	TimeToSettle time.Time   `json:"timeToSettle"`
	HedgeStatus  HedgeStatus `json:"hedgeStatus"`
	FirstBreach  *time.Time  `json:"firstBreach,omitempty"`
	LastHedge    *time.Time  `json:"lastHedge,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastUpdated  time.Time   `json:"lastUpdated"`
}

// HedgeRecord extracts the mutable hedge state from the entry.
func (e LedgerEntry) HedgeRecord() HedgeRecord {
	return HedgeRecord{
		Status:      e.HedgeStatus,
		FirstBreach: e.FirstBreach,
		LastHedge:   e.LastHedge,
	}
}

// LedgerStore is the durable map from position id to ledger entry. Upsert
// must be idempotent and crash-safe: a failed write never leaves the store
// unreadable. The store is single-writer; only one cycle runs at a time.
type LedgerStore interface {
	Upsert(ctx context.Context, entry LedgerEntry) error
	Get(ctx context.Context, id string) (LedgerEntry, error)
	All(ctx context.Context) (map[string]LedgerEntry, error)
	// ListClosedBefore returns historical entries (positions the exchange no
	// longer reports) last updated before the cutoff. Used by archival.
	ListClosedBefore(ctx context.Context, active map[string]bool, before time.Time) ([]LedgerEntry, error)
	// Delete removes entries by id. Maintenance only; the hot path never
	// deletes.
	Delete(ctx context.Context, ids []string) error
}
