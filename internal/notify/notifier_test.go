package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

type recordSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordSender) Name() string { return s.name }

func newTestNotifier(events []string, senders ...Sender) *Notifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotifier(senders, events, logger)
}

func TestNotifyDeliversToAllSenders(t *testing.T) {
	a := &recordSender{name: "telegram"}
	b := &recordSender{name: "discord"}
	n := newTestNotifier(nil, a, b)

	require.NoError(t, n.Notify(context.Background(), EventProcessStop, "Bot stopping", "reason: caps"))

	assert.Equal(t, []string{"Bot stopping"}, a.titles)
	assert.Equal(t, []string{"Bot stopping"}, b.titles)
}

func TestNotifyFiltersUnlistedEvents(t *testing.T) {
	s := &recordSender{name: "telegram"}
	n := newTestNotifier([]string{EventHedgeEscalated}, s)

	require.NoError(t, n.Notify(context.Background(), EventBorrowFailed, "Borrow failed: USDT", "x"))
	assert.Empty(t, s.titles, "unlisted event must not reach senders")

	require.NoError(t, n.Notify(context.Background(), EventHedgeEscalated, "Hedge", "x"))
	assert.Equal(t, []string{"Hedge"}, s.titles)
}

func TestNotifyEmptyEventListAllowsEverything(t *testing.T) {
	s := &recordSender{name: "telegram"}
	n := newTestNotifier(nil, s)

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	s := &recordSender{name: "telegram"}
	n := newTestNotifier([]string{EventHedgeEscalated}, s)

	require.NoError(t, n.NotifyAll(context.Background(), "urgent", "m"))
	assert.Equal(t, []string{"urgent"}, s.titles)
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &recordSender{name: "discord", err: errors.New("webhook 500")}
	good := &recordSender{name: "telegram"}
	n := newTestNotifier(nil, bad, good)

	err := n.Notify(context.Background(), EventProcessStop, "t", "m")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord")
	assert.Len(t, good.titles, 1, "one failing sender must not block the rest")
}

func TestNotifyNoSendersIsNoop(t *testing.T) {
	n := newTestNotifier(nil)
	assert.NoError(t, n.Notify(context.Background(), EventProcessStop, "t", "m"))
}

func TestHedgeEscalatedMessageContent(t *testing.T) {
	s := &recordSender{name: "telegram"}
	n := newTestNotifier(nil, s)

	pos := domain.ActivePosition{
		Position: domain.Position{
			ID:          "99001",
			Pair:        "BTCUSDT",
			StrikePrice: 60000,
			SettleDate:  time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
		},
		Hedge: domain.HedgeRecord{Status: domain.HedgeNone},
	}

	require.NoError(t, n.HedgeEscalated(context.Background(), pos, domain.HedgeStep1, 0.25, 60500))
	require.Len(t, s.titles, 1)
	assert.Contains(t, s.titles[0], "BTCUSDT")
	assert.Contains(t, s.titles[0], domain.HedgeStep1.String())
}
