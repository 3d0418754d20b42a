// Package ledger reconciles the exchange's authoritative position list with
// the locally persisted hedge state. The exchange decides which positions
// exist; the ledger decides what hedge state they carry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// Service wraps a LedgerStore with the reconciliation and persistence rules.
type Service struct {
	store domain.LedgerStore
	log   *slog.Logger
}

// NewService creates a ledger Service over the given store.
func NewService(store domain.LedgerStore, logger *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   logger.With("component", "ledger"),
	}
}

// Reconcile attaches persisted hedge state to every exchange-reported
// position, defaulting to an empty record for unknown ids. Entries for
// positions the exchange no longer reports stay in the store as history;
// they are simply not part of the active set. Reconcile is idempotent: the
// same exchange snapshot always yields the same active set.
func (s *Service) Reconcile(ctx context.Context, positions []domain.Position) ([]domain.ActivePosition, error) {
	entries, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: reconcile: %w", err)
	}

	active := make([]domain.ActivePosition, 0, len(positions))
	for _, pos := range positions {
		ap := domain.ActivePosition{Position: pos}
		if e, ok := entries[pos.ID]; ok {
			ap.Hedge = e.HedgeRecord()
		}
		active = append(active, ap)
	}

	if closed := len(entries) - len(active); closed > 0 {
		s.log.Debug("reconciled ledger", "active", len(active), "historical", closed)
	}
	return active, nil
}

// Persist upserts the entry for a position with its current hedge record.
// CreatedAt is preserved for known ids so an entry keeps its birth time
// across updates.
func (s *Service) Persist(ctx context.Context, pos domain.Position, rec domain.HedgeRecord) error {
	now := time.Now().UTC()

	createdAt := now
	if existing, err := s.store.Get(ctx, pos.ID); err == nil {
		createdAt = existing.CreatedAt
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("ledger: persist %s: %w", pos.ID, err)
	}

	entry := domain.LedgerEntry{
		ID:           pos.ID,
		Symbol:       pos.Pair,
		OptionType:   pos.OptionType,
		StrikePrice:  pos.StrikePrice,
		Amount:       pos.SubscriptionAmount,
		Roi:          pos.Roi(now),
		TimeToSettle: pos.SettleDate,
		HedgeStatus:  rec.Status,
		FirstBreach:  rec.FirstBreach,
		LastHedge:    rec.LastHedge,
		CreatedAt:    createdAt,
		LastUpdated:  now,
	}
	if err := s.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("ledger: persist %s: %w", pos.ID, err)
	}
	return nil
}

// HedgeStatus returns the persisted status for a position id, defaulting to
// HedgeNone for unknown ids.
func (s *Service) HedgeStatus(ctx context.Context, id string) (domain.HedgeStatus, error) {
	e, err := s.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.HedgeNone, nil
	}
	if err != nil {
		return domain.HedgeNone, fmt.Errorf("ledger: hedge status %s: %w", id, err)
	}
	return e.HedgeStatus, nil
}

// GuardSnapshot enforces the staleness rule: hedge evaluation must never run
// on data older than maxAge. Returns domain.ErrStaleSnapshot when the guard
// trips.
func GuardSnapshot(snap domain.MarketSnapshot, maxAge time.Duration, now time.Time) error {
	if age := snap.Age(now); age > maxAge {
		return fmt.Errorf("ledger: snapshot age %s exceeds %s: %w", age.Round(time.Second), maxAge, domain.ErrStaleSnapshot)
	}
	return nil
}
