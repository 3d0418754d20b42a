package ledgerfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, updated time.Time) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:          id,
		Symbol:      "BTCUSDT",
		OptionType:  domain.OptionTypeCall,
		StrikePrice: 60000,
		Amount:      0.5,
		HedgeStatus: domain.HedgeNone,
		CreatedAt:   updated,
		LastUpdated: updated,
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, err := Open(path)
	require.NoError(t, err)

	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpenCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path)
	assert.Error(t, err, "a corrupt ledger must never be silently replaced")
}

func TestUpsertSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)

	breach := now.Add(-2 * time.Minute)
	e := entry("p1", now)
	e.HedgeStatus = domain.HedgeStep1
	e.FirstBreach = &breach
	require.NoError(t, s.Upsert(ctx, e))

	// Reopen from disk and check everything round-tripped.
	reopened, err := Open(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.HedgeStep1, got.HedgeStatus)
	require.NotNil(t, got.FirstBreach)
	assert.True(t, got.FirstBreach.Equal(breach), "breach timer survives a restart")
	assert.True(t, got.LastUpdated.Equal(now))
}

func TestGetUnknownID(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListClosedBefore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Upsert(ctx, entry("old-closed", now.Add(-72*time.Hour))))
	require.NoError(t, s.Upsert(ctx, entry("older-closed", now.Add(-96*time.Hour))))
	require.NoError(t, s.Upsert(ctx, entry("old-active", now.Add(-72*time.Hour))))
	require.NoError(t, s.Upsert(ctx, entry("recent-closed", now.Add(-time.Hour))))

	got, err := s.ListClosedBefore(ctx, map[string]bool{"old-active": true}, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "older-closed", got[0].ID, "oldest first")
	assert.Equal(t, "old-closed", got[1].ID)
}

func TestDeleteRemovesAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, entry("a", now)))
	require.NoError(t, s.Upsert(ctx, entry("b", now)))

	require.NoError(t, s.Delete(ctx, []string{"a", "missing"}))

	reopened, err := Open(path)
	require.NoError(t, err)
	_, err = reopened.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = reopened.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestUpsertRollsBackOnFlushFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}

	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, entry("keep", now)))

	// Making the directory read-only fails the temp-file creation.
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	err = s.Upsert(ctx, entry("new", now))
	require.Error(t, err)

	_, err = s.Get(ctx, "new")
	assert.ErrorIs(t, err, domain.ErrNotFound, "failed writes leave no trace in memory")
	_, err = s.Get(ctx, "keep")
	assert.NoError(t, err)
}
