package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// Event types the bot emits. The notify.events config list filters on these.
const (
	EventSubscriptionExecuted = "subscription_executed"
	EventHedgeEscalated       = "hedge_escalated"
	EventBorrowFailed         = "borrow_failed"
	EventProcessStop          = "process_stop"
)

// SubscriptionExecuted reports a confirmed dual-investment subscription.
func (n *Notifier) SubscriptionExecuted(ctx context.Context, p domain.ScoredProduct, amount float64) error {
	title := fmt.Sprintf("Subscribed %s %s", p.Pair(), p.OptionType)
	msg := fmt.Sprintf(
		"amount: %.4f %s\nstrike: %.2f\napr: %.2f%%\nsettle: %s\nbuffer: %.2f%%",
		amount, p.InvestCoin, p.StrikePrice, p.APR*100,
		p.SettleDate.Format("2006-01-02 15:04"), p.BufferPercent,
	)
	return n.Notify(ctx, EventSubscriptionExecuted, title, msg)
}

// HedgeEscalated reports a confirmed hedge transition for a position.
func (n *Notifier) HedgeEscalated(ctx context.Context, pos domain.ActivePosition, to domain.HedgeStatus, quantity float64, spot float64) error {
	title := fmt.Sprintf("Hedge %s -> %s on %s", pos.Hedge.Status, to, pos.Pair)
	msg := fmt.Sprintf(
		"position: %s\nquantity: %.6f\nspot: %.2f\nstrike: %.2f\nsettle: %s",
		pos.ID, quantity, spot, pos.StrikePrice,
		pos.SettleDate.Format("2006-01-02 15:04"),
	)
	return n.Notify(ctx, EventHedgeEscalated, title, msg)
}

// BorrowFailed reports that every collateral candidate was rejected for a
// needed borrow.
func (n *Notifier) BorrowFailed(ctx context.Context, coin string, amount float64, err error) error {
	title := fmt.Sprintf("Borrow failed: %s", coin)
	msg := fmt.Sprintf("amount: %.6f\nerror: %v", amount, err)
	return n.Notify(ctx, EventBorrowFailed, title, msg)
}

// ProcessStop reports that the control loop is halting, with the reason.
func (n *Notifier) ProcessStop(ctx context.Context, reason string) error {
	title := "Bot stopping"
	msg := fmt.Sprintf("reason: %s\nat: %s", reason, time.Now().UTC().Format(time.RFC3339))
	return n.Notify(ctx, EventProcessStop, title, msg)
}
