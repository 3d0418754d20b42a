// Package engine drives the periodic control loop: one cycle reconciles the
// ledger, assembles a market snapshot, scores and executes candidates, and
// evaluates hedges. Overlapping triggers are dropped via a non-blocking
// lock, and every cycle runs under a hard timeout so a stuck network call
// can never wedge the loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/config"
	"github.com/alanyoungcy/dualhedge/internal/domain"
	"github.com/alanyoungcy/dualhedge/internal/executor"
	"github.com/alanyoungcy/dualhedge/internal/hedge"
	"github.com/alanyoungcy/dualhedge/internal/ledger"
	"github.com/alanyoungcy/dualhedge/internal/selection"
	"github.com/alanyoungcy/dualhedge/internal/snapshot"
)

// cycleLockKey guards the control loop. With the Redis lock manager this
// also excludes cycles across replicas.
const cycleLockKey = "cycle"

// StopAlerter receives the process-stop notification. Nil-safe.
type StopAlerter interface {
	ProcessStop(ctx context.Context, reason string) error
}

// Runner owns the control loop.
type Runner struct {
	engineCfg config.EngineConfig
	hedgeCfg  config.HedgeConfig
	maxTotal  int

	exchange   domain.Exchange
	locks      domain.LockManager
	ledgerSvc  *ledger.Service
	assembler  *snapshot.Assembler
	pipeline   *selection.Pipeline
	dispatcher *executor.Dispatcher
	machine    *hedge.Machine

	// archiver is optional; nil disables cold-storage archival.
	archiver         domain.Archiver
	archiveRetention time.Duration

	alerter StopAlerter
	log     *slog.Logger
}

// Deps bundles the Runner's collaborators.
type Deps struct {
	Exchange   domain.Exchange
	Locks      domain.LockManager
	Ledger     *ledger.Service
	Assembler  *snapshot.Assembler
	Pipeline   *selection.Pipeline
	Dispatcher *executor.Dispatcher
	Machine    *hedge.Machine
	Archiver   domain.Archiver
	Alerter    StopAlerter
}

// NewRunner creates a Runner.
func NewRunner(engineCfg config.EngineConfig, hedgeCfg config.HedgeConfig, maxTotal int, archiveRetention time.Duration, deps Deps, logger *slog.Logger) *Runner {
	return &Runner{
		engineCfg:        engineCfg,
		hedgeCfg:         hedgeCfg,
		maxTotal:         maxTotal,
		exchange:         deps.Exchange,
		locks:            deps.Locks,
		ledgerSvc:        deps.Ledger,
		assembler:        deps.Assembler,
		pipeline:         deps.Pipeline,
		dispatcher:       deps.Dispatcher,
		machine:          deps.Machine,
		archiver:         deps.Archiver,
		archiveRetention: archiveRetention,
		alerter:          deps.Alerter,
		log:              logger.With("component", "engine"),
	}
}

// Run executes cycles on the configured interval until ctx is cancelled or
// a process-level stop condition fires. The first cycle runs immediately.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.engineCfg.Interval.Duration)
	defer ticker.Stop()

	r.log.Info("control loop started",
		"interval", r.engineCfg.Interval.Duration, "cycle_timeout", r.engineCfg.CycleTimeout.Duration)

	for {
		if err := r.RunCycle(ctx); err != nil {
			if errors.Is(err, domain.ErrCapsReached) {
				r.log.Warn("position caps reached, halting process")
				if r.alerter != nil {
					_ = r.alerter.ProcessStop(ctx, err.Error())
				}
				return err
			}
			// Transient cycle failures retry naturally on the next tick.
			r.log.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.log.Info("control loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes exactly one cycle under the mutual-exclusion lock and
// the per-cycle hard timeout. A trigger firing while a cycle still runs is
// dropped, never queued.
func (r *Runner) RunCycle(ctx context.Context) error {
	// Lock TTL outlives the timeout slightly so the lock is always either
	// held by a live cycle or expired.
	unlock, err := r.locks.Acquire(ctx, cycleLockKey, r.engineCfg.CycleTimeout.Duration+30*time.Second)
	if errors.Is(err, domain.ErrLockHeld) {
		r.log.Warn("previous cycle still running, trigger dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: acquire cycle lock: %w", err)
	}
	defer unlock()

	cycleCtx, cancel := context.WithTimeout(ctx, r.engineCfg.CycleTimeout.Duration)
	defer cancel()

	started := time.Now()
	err = r.cycle(cycleCtx)
	elapsed := time.Since(started).Round(time.Millisecond)

	if err != nil && !errors.Is(err, domain.ErrCapsReached) {
		return fmt.Errorf("engine: cycle after %s: %w", elapsed, err)
	}
	r.log.Info("cycle finished", "elapsed", elapsed)
	return err
}

// cycle is one full pass: reconcile -> snapshot -> select -> execute ->
// hedge -> archive. Steps degrade independently; only a failure of the
// inputs everything depends on aborts the pass.
func (r *Runner) cycle(ctx context.Context) error {
	positions, err := r.exchange.FetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	active, err := r.ledgerSvc.Reconcile(ctx, positions)
	if err != nil {
		return err
	}

	snap, err := r.assembler.Assemble(ctx)
	if err != nil {
		return err
	}

	capsReached := len(active) >= r.maxTotal

	if capsReached {
		r.log.Warn("global position cap reached, skipping execution",
			"active", len(active), "cap", r.maxTotal)
	} else {
		now := time.Now().UTC()
		ranked := r.pipeline.Run(snap, active, now)
		if len(ranked) > 0 {
			executed := r.dispatcher.Execute(ctx, ranked, snap.Balances)
			r.log.Info("execution pass done", "candidates", len(ranked), "executed", executed)
		}
	}

	fullyHedged := r.evaluateHedges(ctx, snap, active)
	if r.hedgeCfg.MaxHedgedPositions > 0 && fullyHedged >= r.hedgeCfg.MaxHedgedPositions {
		return fmt.Errorf("engine: %d positions fully hedged (max %d): %w",
			fullyHedged, r.hedgeCfg.MaxHedgedPositions, domain.ErrCapsReached)
	}
	if capsReached {
		return fmt.Errorf("engine: %d active positions (max %d): %w",
			len(active), r.maxTotal, domain.ErrCapsReached)
	}

	r.archive(ctx, active)
	return nil
}

// evaluateHedges runs the state machine over every active position and
// returns the number of fully hedged positions afterwards. The staleness
// guard is checked once for the whole pass.
func (r *Runner) evaluateHedges(ctx context.Context, snap domain.MarketSnapshot, active []domain.ActivePosition) int {
	now := time.Now().UTC()
	if err := ledger.GuardSnapshot(snap, r.hedgeCfg.SnapshotMaxAge.Duration, now); err != nil {
		r.log.Warn("hedge evaluation skipped", "error", err)
		full := 0
		for _, pos := range active {
			if pos.Hedge.Status == domain.HedgeFull {
				full++
			}
		}
		return full
	}

	full := 0
	for _, pos := range active {
		rec, err := r.machine.Evaluate(ctx, pos, snap.Prices[pos.Pair], now)
		if err != nil {
			r.log.Error("hedge evaluation failed",
				"position_id", pos.ID, "pair", pos.Pair, "error", err)
			rec = pos.Hedge
		}
		if rec.Status == domain.HedgeFull {
			full++
		}
	}
	return full
}

// archive ships closed ledger entries past the retention window to cold
// storage. Failures only log; archival is maintenance, not the hot path.
func (r *Runner) archive(ctx context.Context, active []domain.ActivePosition) {
	if r.archiver == nil || r.archiveRetention <= 0 {
		return
	}
	activeIDs := make(map[string]bool, len(active))
	for _, pos := range active {
		activeIDs[pos.ID] = true
	}
	cutoff := time.Now().UTC().Add(-r.archiveRetention)
	if _, err := r.archiver.ArchiveClosed(ctx, activeIDs, cutoff); err != nil {
		r.log.Warn("ledger archival failed", "error", err)
	}
}
