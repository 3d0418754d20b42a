package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const ledgerSelectCols = `id, symbol, option_type, strike_price, amount, roi,
	time_to_settle, hedge_status, first_breach, last_hedge, created_at, last_updated`

func scanLedgerRow(row pgx.Row) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var optionType, hedgeStatus string

	err := row.Scan(
		&e.ID, &e.Symbol, &optionType,
		&e.StrikePrice, &e.Amount, &e.Roi,
		&e.TimeToSettle, &hedgeStatus,
		&e.FirstBreach, &e.LastHedge,
		&e.CreatedAt, &e.LastUpdated,
	)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	e.OptionType = domain.OptionType(optionType)
	e.HedgeStatus = domain.ParseHedgeStatus(hedgeStatus)
	return e, nil
}

// Upsert inserts or replaces the entry keyed by position id. CreatedAt is
// preserved on conflict so the entry keeps its original birth time.
func (s *LedgerStore) Upsert(ctx context.Context, e domain.LedgerEntry) error {
	const query = `
		INSERT INTO ledger_entries (
			id, symbol, option_type, strike_price, amount, roi,
			time_to_settle, hedge_status, first_breach, last_hedge,
			created_at, last_updated
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12
		)
		ON CONFLICT (id) DO UPDATE SET
			symbol         = EXCLUDED.symbol,
			option_type    = EXCLUDED.option_type,
			strike_price   = EXCLUDED.strike_price,
			amount         = EXCLUDED.amount,
			roi            = EXCLUDED.roi,
			time_to_settle = EXCLUDED.time_to_settle,
			hedge_status   = EXCLUDED.hedge_status,
			first_breach   = EXCLUDED.first_breach,
			last_hedge     = EXCLUDED.last_hedge,
			last_updated   = EXCLUDED.last_updated`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.Symbol, string(e.OptionType),
		e.StrikePrice, e.Amount, e.Roi,
		e.TimeToSettle, e.HedgeStatus.String(),
		e.FirstBreach, e.LastHedge,
		e.CreatedAt, e.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert ledger entry %s: %w", e.ID, err)
	}
	return nil
}

// Get returns the entry for the given position id.
func (s *LedgerStore) Get(ctx context.Context, id string) (domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerSelectCols + ` FROM ledger_entries WHERE id = $1`

	e, err := scanLedgerRow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("postgres: get ledger entry %s: %w", id, err)
	}
	return e, nil
}

// All returns every entry keyed by position id.
func (s *LedgerStore) All(ctx context.Context) (map[string]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerSelectCols + ` FROM ledger_entries`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.LedgerEntry)
	for rows.Next() {
		e, err := scanLedgerRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		out[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	return out, nil
}

// ListClosedBefore returns entries for positions the exchange no longer
// reports, last updated before the cutoff. Active filtering happens here
// rather than in SQL because the active set is cycle-local.
func (s *LedgerStore) ListClosedBefore(ctx context.Context, active map[string]bool, before time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerSelectCols + ` FROM ledger_entries WHERE last_updated < $1 ORDER BY last_updated`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		if active[e.ID] {
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed ledger entries: %w", err)
	}
	return out, nil
}

// Delete removes the given entries. Used by the archival path after a
// durable upload.
func (s *LedgerStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `DELETE FROM ledger_entries WHERE id = ANY($1)`
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("postgres: delete ledger entries: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
