package hedge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/config"
	"github.com/alanyoungcy/dualhedge/internal/domain"
	"github.com/alanyoungcy/dualhedge/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStore struct {
	entries map[string]domain.LedgerEntry
	upserts int
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]domain.LedgerEntry)}
}

func (s *fakeStore) Upsert(_ context.Context, e domain.LedgerEntry) error {
	if s.failAll {
		return errors.New("store down")
	}
	s.entries[e.ID] = e
	s.upserts++
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (domain.LedgerEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return domain.LedgerEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (s *fakeStore) All(_ context.Context) (map[string]domain.LedgerEntry, error) {
	out := make(map[string]domain.LedgerEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) ListClosedBefore(_ context.Context, active map[string]bool, before time.Time) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range s.entries {
		if !active[e.ID] && e.LastUpdated.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

type placedOrder struct {
	symbol   string
	side     domain.MarginSide
	quantity float64
}

type fakeExchange struct {
	filter    domain.SymbolFilter
	filterErr error
	orderErr  error
	rejected  bool
	orders    []placedOrder
}

func (e *fakeExchange) FetchPositions(context.Context) ([]domain.Position, error) { return nil, nil }
func (e *fakeExchange) FetchProducts(context.Context, string, domain.OptionType) ([]domain.Product, error) {
	return nil, nil
}
func (e *fakeExchange) FetchSpotPrices(context.Context, []string) (map[string]float64, error) {
	return nil, nil
}
func (e *fakeExchange) FetchSpotBalances(context.Context) (map[string]float64, error) {
	return nil, nil
}
func (e *fakeExchange) Subscribe(context.Context, string, float64) (domain.SubscribeResult, error) {
	return domain.SubscribeResult{}, nil
}
func (e *fakeExchange) BorrowCoins(context.Context, string, float64, string, float64) (domain.BorrowResult, error) {
	return domain.BorrowResult{}, nil
}

func (e *fakeExchange) SymbolFilter(_ context.Context, symbol string) (domain.SymbolFilter, error) {
	if e.filterErr != nil {
		return domain.SymbolFilter{}, e.filterErr
	}
	f := e.filter
	f.Symbol = symbol
	return f, nil
}

func (e *fakeExchange) OpenMarginPosition(_ context.Context, symbol string, side domain.MarginSide, quantity float64) (domain.OrderResult, error) {
	if e.orderErr != nil {
		return domain.OrderResult{}, e.orderErr
	}
	e.orders = append(e.orders, placedOrder{symbol: symbol, side: side, quantity: quantity})
	if e.rejected {
		return domain.OrderResult{Success: false, Code: -2010, Message: "insufficient balance"}, nil
	}
	return domain.OrderResult{OrderID: "o1", Symbol: symbol, Side: side, Quantity: quantity, Success: true}, nil
}

type fakeAlerter struct {
	escalations []domain.HedgeStatus
}

func (a *fakeAlerter) HedgeEscalated(_ context.Context, _ domain.ActivePosition, to domain.HedgeStatus, _ float64, _ float64) error {
	a.escalations = append(a.escalations, to)
	return nil
}

func hedgeCfg() config.HedgeConfig {
	return config.HedgeConfig{
		ConfirmationWindow:  config.Duration{Duration: 5 * time.Minute},
		Cooldown:            config.Duration{Duration: 15 * time.Minute},
		Step1Fraction:       0.5,
		EscalationThreshold: 0.01,
		SnapshotMaxAge:      config.Duration{Duration: 5 * time.Minute},
		MaxHedgedPositions:  10,
	}
}

// callPosition has roi 0.003 over three days, so break-even sits at 60180.
func callPosition(now time.Time) domain.ActivePosition {
	return domain.ActivePosition{Position: domain.Position{
		ID:                 "pos-1",
		Pair:               "BTCUSDT",
		OptionType:         domain.OptionTypeCall,
		SubscriptionAmount: 0.5,
		StrikePrice:        60000,
		APR:                0.365,
		SettleDate:         now.Add(72 * time.Hour),
	}}
}

// putPosition mirrors callPosition on the downside: break-even at 59820,
// notional 0.5 BTC from a 30000 USDT subscription.
func putPosition(now time.Time) domain.ActivePosition {
	return domain.ActivePosition{Position: domain.Position{
		ID:                 "pos-2",
		Pair:               "BTCUSDT",
		OptionType:         domain.OptionTypePut,
		SubscriptionAmount: 30000,
		StrikePrice:        60000,
		APR:                0.365,
		SettleDate:         now.Add(72 * time.Hour),
	}}
}

func newTestMachine(exch *fakeExchange, store *fakeStore, alerter Alerter) *Machine {
	return NewMachine(hedgeCfg(), exch, ledger.NewService(store, discardLog), alerter, discardLog)
}

func TestMachineNoBreachNoAction(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	rec, err := m.Evaluate(context.Background(), callPosition(now), 60100, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeNone, rec.Status)
	assert.Nil(t, rec.FirstBreach)
	assert.Zero(t, store.upserts)
	assert.Empty(t, exch.orders)
}

func TestMachineFirstBreachStartsWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	rec, err := m.Evaluate(context.Background(), callPosition(now), 60200, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeNone, rec.Status, "no order on first sighting")
	require.NotNil(t, rec.FirstBreach)
	assert.True(t, rec.FirstBreach.Equal(now))
	assert.Equal(t, 1, store.upserts, "breach timestamp is persisted immediately")
	assert.Empty(t, exch.orders)
}

func TestMachineWithinWindowHolds(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	breach := now.Add(-4 * time.Minute)
	pos.Hedge.FirstBreach = &breach

	rec, err := m.Evaluate(context.Background(), pos, 60200, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeNone, rec.Status)
	assert.Empty(t, exch.orders, "four minutes into a five minute window")
	assert.Zero(t, store.upserts)
}

func TestMachineEscalatesToStep1AfterWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	alerter := &fakeAlerter{}
	m := newTestMachine(exch, store, alerter)

	pos := callPosition(now)
	breach := now.Add(-6 * time.Minute)
	pos.Hedge.FirstBreach = &breach

	rec, err := m.Evaluate(context.Background(), pos, 60200, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeStep1, rec.Status)
	require.NotNil(t, rec.LastHedge)
	assert.True(t, rec.LastHedge.Equal(now))

	require.Len(t, exch.orders, 1, "exactly one hedge order")
	order := exch.orders[0]
	assert.Equal(t, "BTCUSDT", order.symbol)
	assert.Equal(t, domain.MarginSideBuy, order.side, "a CALL hedge buys")
	assert.InDelta(t, 0.25, order.quantity, 1e-9, "half the 0.5 notional")

	assert.Equal(t, []domain.HedgeStatus{domain.HedgeStep1}, alerter.escalations)
	assert.Equal(t, domain.HedgeStep1, store.entries["pos-1"].HedgeStatus, "status persisted after fill")
}

func TestMachineRecoveryClearsTimerKeepsStatus(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	breach := now.Add(-10 * time.Minute)
	last := now.Add(-8 * time.Minute)
	pos.Hedge = domain.HedgeRecord{Status: domain.HedgeStep1, FirstBreach: &breach, LastHedge: &last}

	rec, err := m.Evaluate(context.Background(), pos, 60100, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeStep1, rec.Status, "executed hedges never regress")
	assert.Nil(t, rec.FirstBreach, "recovery clears the confirmation timer")
	assert.NotNil(t, rec.LastHedge)
	assert.Equal(t, 1, store.upserts)
	assert.Empty(t, exch.orders)
}

func TestMachineStep1ToFullNeedsEscalationDistance(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	breach := now.Add(-10 * time.Minute)
	last := now.Add(-20 * time.Minute)
	pos.Hedge = domain.HedgeRecord{Status: domain.HedgeStep1, FirstBreach: &breach, LastHedge: &last}

	// Breached but short of break-even * 1.01 (= 60781.8): hold.
	rec, err := m.Evaluate(context.Background(), pos, 60500, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeStep1, rec.Status)
	assert.Empty(t, exch.orders)

	// Past the escalation band with cooldown elapsed: go FULL.
	rec, err = m.Evaluate(context.Background(), pos, 60800, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeFull, rec.Status)
	require.Len(t, exch.orders, 1)
	assert.InDelta(t, 0.25, exch.orders[0].quantity, 1e-9, "FULL covers the unhedged half")
}

func TestMachineStep1ToFullRespectsCooldown(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	breach := now.Add(-10 * time.Minute)
	last := now.Add(-5 * time.Minute) // cooldown is 15m
	pos.Hedge = domain.HedgeRecord{Status: domain.HedgeStep1, FirstBreach: &breach, LastHedge: &last}

	rec, err := m.Evaluate(context.Background(), pos, 60800, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeStep1, rec.Status)
	assert.Empty(t, exch.orders)
}

func TestMachineFullIsTerminal(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	pos.Hedge.Status = domain.HedgeFull

	rec, err := m.Evaluate(context.Background(), pos, 70000, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeFull, rec.Status)
	assert.Empty(t, exch.orders)
	assert.Zero(t, store.upserts)
}

func TestMachinePutDirection(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := putPosition(now)
	breach := now.Add(-6 * time.Minute)
	pos.Hedge.FirstBreach = &breach

	// Break-even is 59820; 59700 is a confirmed downside breach.
	rec, err := m.Evaluate(context.Background(), pos, 59700, now)
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeStep1, rec.Status)
	require.Len(t, exch.orders, 1)
	assert.Equal(t, domain.MarginSideSell, exch.orders[0].side, "a PUT hedge sells")
	assert.InDelta(t, 0.25, exch.orders[0].quantity, 1e-9, "30000 USDT at strike 60000 is 0.5 BTC notional")
}

func TestMachineBelowMinimumSkipsWithoutError(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 1}}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	breach := now.Add(-6 * time.Minute)
	pos.Hedge.FirstBreach = &breach

	rec, err := m.Evaluate(context.Background(), pos, 60200, now)
	require.NoError(t, err, "below-minimum is a skip, not a failure")
	assert.Equal(t, domain.HedgeNone, rec.Status)
	assert.NotNil(t, rec.FirstBreach, "breach timer survives the skip")
	assert.Empty(t, exch.orders)
}

func TestMachineOrderFailureKeepsState(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{
		filter:   domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001},
		orderErr: errors.New("exchange down"),
	}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	breach := now.Add(-6 * time.Minute)
	pos.Hedge.FirstBreach = &breach

	rec, err := m.Evaluate(context.Background(), pos, 60200, now)
	require.Error(t, err)
	assert.Equal(t, domain.HedgeNone, rec.Status, "status never advances past a failed order")
	assert.NotNil(t, rec.FirstBreach)
}

func TestMachineRejectedOrderKeepsState(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{
		filter:   domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001},
		rejected: true,
	}
	store := newFakeStore()
	m := newTestMachine(exch, store, nil)

	pos := callPosition(now)
	breach := now.Add(-6 * time.Minute)
	pos.Hedge.FirstBreach = &breach

	rec, err := m.Evaluate(context.Background(), pos, 60200, now)
	require.Error(t, err)
	assert.Equal(t, domain.HedgeNone, rec.Status)
}

func TestMachineMissingSpotIsAnError(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	exch := &fakeExchange{filter: domain.SymbolFilter{StepSize: 0.001, MinQuantity: 0.001}}
	m := newTestMachine(exch, newFakeStore(), nil)

	_, err := m.Evaluate(context.Background(), callPosition(now), 0, now)
	assert.Error(t, err)
}
