package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/crypto"
	"github.com/alanyoungcy/dualhedge/internal/engine"
)

// RunMode starts the periodic control loop and blocks until shutdown or a
// process-level stop condition.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode",
		slog.Any("assets", a.cfg.Selection.Assets),
		slog.Bool("mock", a.cfg.Exchange.Mock),
	)

	runner := engine.NewRunner(
		a.cfg.Engine, a.cfg.Hedge,
		a.cfg.Selection.MaxTotalPositions,
		a.cfg.Ledger.ArchiveRetention.Duration,
		engine.Deps{
			Exchange:   deps.Exchange,
			Locks:      deps.LockManager,
			Ledger:     deps.Ledger,
			Assembler:  deps.Assembler,
			Pipeline:   deps.Pipeline,
			Dispatcher: deps.Dispatcher,
			Machine:    deps.Machine,
			Archiver:   deps.Archiver,
			Alerter:    deps.Notifier,
		},
		a.logger,
	)
	return runner.Run(ctx)
}

// ScanOnceMode assembles one snapshot, runs the scoring pipeline, and logs
// the ranked candidates without executing anything. Useful for tuning curve
// parameters against the live market.
func (a *App) ScanOnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan-once mode")

	positions, err := deps.Exchange.FetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("app: scan: fetch positions: %w", err)
	}
	active, err := deps.Ledger.Reconcile(ctx, positions)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}

	snap, err := deps.Assembler.Assemble(ctx)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}

	ranked := deps.Pipeline.Run(snap, active, time.Now().UTC())
	a.logger.Info("scan complete",
		slog.Int("products", len(snap.Products)),
		slog.Int("active_positions", len(active)),
		slog.Int("candidates", len(ranked)),
	)
	for i, sp := range ranked {
		a.logger.Info("candidate",
			slog.Int("rank", i+1),
			slog.String("product_id", sp.ID),
			slog.String("pair", sp.Pair()),
			slog.String("option_type", string(sp.OptionType)),
			slog.Float64("strike", sp.StrikePrice),
			slog.Float64("apr", sp.APR),
			slog.Int("days", sp.RoundedDays),
			slog.Float64("actual_roi", sp.ActualRoi),
			slog.Float64("target_roi", sp.TargetRoi),
			slog.Float64("break_even", sp.BreakEven),
			slog.Float64("buffer_percent", sp.BufferPercent),
			slog.Float64("abs_ratio", sp.AbsRatio),
		)
	}
	return nil
}

// EncryptKeyMode reads an API secret and password from the terminal and
// writes the encrypted blob to the configured path.
func (a *App) EncryptKeyMode(_ context.Context) error {
	outPath := a.cfg.Exchange.EncryptedSecretPath
	if outPath == "" {
		outPath = "secret.enc.json"
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("API secret: ")
	secret, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("app: read secret: %w", err)
	}
	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("app: read password: %w", err)
	}

	blob, err := crypto.EncryptSecret(strings.TrimSpace(secret), strings.TrimSpace(password))
	if err != nil {
		return fmt.Errorf("app: encrypt secret: %w", err)
	}
	if err := os.WriteFile(outPath, blob, 0o600); err != nil {
		return fmt.Errorf("app: write %s: %w", outPath, err)
	}

	a.logger.Info("encrypted secret written", slog.String("path", outPath))
	return nil
}
