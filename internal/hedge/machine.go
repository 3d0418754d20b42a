// Package hedge implements the per-position hedge state machine. Status
// moves NONE -> STEP1 -> FULL and never back; every transition requires a
// confirmed breach of break-even held through a confirmation window, and an
// executed margin order before the new status is persisted.
package hedge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/config"
	"github.com/alanyoungcy/dualhedge/internal/domain"
	"github.com/alanyoungcy/dualhedge/internal/ledger"
)

// Alerter receives hedge escalation notifications. Nil-safe at the Machine
// level: a Machine without an Alerter just skips the calls.
type Alerter interface {
	HedgeEscalated(ctx context.Context, pos domain.ActivePosition, to domain.HedgeStatus, quantity float64, spot float64) error
}

// Machine evaluates and executes hedge transitions. It is the only writer
// of hedge status; everything else treats the record as read-only.
type Machine struct {
	cfg      config.HedgeConfig
	exchange domain.Exchange
	ledger   *ledger.Service
	alerter  Alerter
	log      *slog.Logger
}

// NewMachine creates a hedge Machine. alerter may be nil.
func NewMachine(cfg config.HedgeConfig, exchange domain.Exchange, ledgerSvc *ledger.Service, alerter Alerter, logger *slog.Logger) *Machine {
	return &Machine{
		cfg:      cfg,
		exchange: exchange,
		ledger:   ledgerSvc,
		alerter:  alerter,
		log:      logger.With("component", "hedge"),
	}
}

// Evaluate runs one state-machine step for a position against the current
// spot price and returns the (possibly updated) hedge record. Errors are
// per-position: the caller logs them and moves on to the next position.
func (m *Machine) Evaluate(ctx context.Context, pos domain.ActivePosition, spot float64, now time.Time) (domain.HedgeRecord, error) {
	rec := pos.Hedge

	if rec.Status == domain.HedgeFull {
		return rec, nil
	}
	if spot <= 0 {
		return rec, fmt.Errorf("hedge: %s: no spot price for %s", pos.ID, pos.Pair)
	}

	breakEven := pos.BreakEven(pos.Roi(now))

	if !breached(pos.OptionType, spot, breakEven) {
		// Recovery clears the confirmation timer; executed hedges stay.
		if rec.FirstBreach != nil {
			rec.FirstBreach = nil
			if err := m.ledger.Persist(ctx, pos.Position, rec); err != nil {
				return pos.Hedge, err
			}
			m.log.Info("breach recovered, timer cleared",
				"position_id", pos.ID, "pair", pos.Pair, "spot", spot, "break_even", breakEven)
		}
		return rec, nil
	}

	// First sighting of a breach starts the confirmation window and takes
	// no other action. The timestamp is persisted immediately so a restart
	// does not restart the window.
	if rec.FirstBreach == nil {
		t := now
		rec.FirstBreach = &t
		if err := m.ledger.Persist(ctx, pos.Position, rec); err != nil {
			return pos.Hedge, err
		}
		m.log.Info("breach detected, confirmation window started",
			"position_id", pos.ID, "pair", pos.Pair, "spot", spot, "break_even", breakEven)
		return rec, nil
	}

	if now.Sub(*rec.FirstBreach) < m.cfg.ConfirmationWindow.Duration {
		return rec, nil
	}

	target, ok := rec.Status.Next()
	if !ok {
		return rec, nil
	}

	if rec.Status == domain.HedgeStep1 {
		// Escalation to FULL needs price a further threshold beyond
		// break-even and the cooldown since the last hedge elapsed.
		if !beyondEscalation(pos.OptionType, spot, breakEven, m.cfg.EscalationThreshold) {
			return rec, nil
		}
		if rec.LastHedge != nil && now.Sub(*rec.LastHedge) < m.cfg.Cooldown.Duration {
			return rec, nil
		}
	}

	quantity, err := m.execute(ctx, pos, target)
	if err != nil {
		if errors.Is(err, domain.ErrBelowMinQuantity) {
			m.log.Warn("hedge skipped, below lot minimum",
				"position_id", pos.ID, "pair", pos.Pair, "target", target)
			return rec, nil
		}
		// Status unchanged, breach timer preserved; next cycle retries.
		return rec, err
	}

	t := now
	rec.Status = target
	rec.LastHedge = &t
	if err := m.ledger.Persist(ctx, pos.Position, rec); err != nil {
		// The order went through but the status write failed. Surface it
		// loudly: the next cycle would otherwise re-hedge.
		return rec, fmt.Errorf("hedge: %s: status persist after fill: %w", pos.ID, err)
	}

	m.log.Info("hedge escalated",
		"position_id", pos.ID, "pair", pos.Pair,
		"from", pos.Hedge.Status, "to", target,
		"quantity", quantity, "spot", spot, "break_even", breakEven)

	if m.alerter != nil {
		if err := m.alerter.HedgeEscalated(ctx, pos, target, quantity, spot); err != nil {
			m.log.Warn("hedge notification failed", "position_id", pos.ID, "error", err)
		}
	}
	return rec, nil
}

// execute sizes and places the margin order for a transition. Returns the
// executed quantity.
func (m *Machine) execute(ctx context.Context, pos domain.ActivePosition, target domain.HedgeStatus) (float64, error) {
	fraction := stepFraction(target, m.cfg.Step1Fraction)
	raw := pos.Notional() * fraction

	filter, err := m.exchange.SymbolFilter(ctx, pos.Pair)
	if err != nil {
		return 0, fmt.Errorf("hedge: %s: symbol filter: %w", pos.ID, err)
	}
	quantity, err := RoundLot(raw, filter)
	if err != nil {
		return 0, err
	}

	res, err := m.exchange.OpenMarginPosition(ctx, pos.Pair, hedgeSide(pos.OptionType), quantity)
	if err != nil {
		return 0, fmt.Errorf("hedge: %s: margin order: %w", pos.ID, err)
	}
	if !res.Success {
		return 0, fmt.Errorf("hedge: %s: margin order rejected: code=%d msg=%q", pos.ID, res.Code, res.Message)
	}
	return quantity, nil
}

// breached reports whether spot is past break-even in the adverse direction
// for the option type.
func breached(ot domain.OptionType, spot, breakEven float64) bool {
	if ot == domain.OptionTypeCall {
		return spot > breakEven
	}
	return spot < breakEven
}

// beyondEscalation reports whether spot has moved a further threshold
// fraction past break-even.
func beyondEscalation(ot domain.OptionType, spot, breakEven, threshold float64) bool {
	if ot == domain.OptionTypeCall {
		return spot >= breakEven*(1+threshold)
	}
	return spot <= breakEven*(1-threshold)
}
