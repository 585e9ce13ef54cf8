package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenLedgerFoldsDeltas(t *testing.T) {
	l := newTokenLedger()
	l.add("2026-08-30", 100)
	l.add("2026-08-31", 1200)
	l.add("2026-08-31", 800)
	l.add("2026-08-31", 0) // no-op

	require.Equal(t, int64(2000), l.day("2026-08-31"))
	require.Equal(t, int64(100), l.day("2026-08-30"))
	require.Zero(t, l.day("2026-08-29"))
	require.Equal(t, int64(2100), l.total())
}

func TestTodayTokensAndCostEstimate(t *testing.T) {
	// Scenario: two same-day reports with deltas 1200 and 800; today is
	// 2000 tokens, and at $1/1M the estimated cost is $0.002.
	e := newTestEngine(t)
	id, key := mustCreate(t, e, "vps-1")

	noon := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	e.now = func() time.Time { return noon }

	first := baseReport(key, noon.Add(-time.Hour))
	first.TokenDelta = 1200
	require.NoError(t, e.ProcessReport(context.Background(), first))

	second := baseReport(key, noon)
	second.TokenDelta = 800
	require.NoError(t, e.ProcessReport(context.Background(), second))

	card, err := e.DeviceCard(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(2000), card.Tokens.Today)
	require.InDelta(t, 0.002, card.Tokens.TodayCost, 1e-9)
}

func TestPastDateDeltaUpdatesPastRollup(t *testing.T) {
	// A delayed report for yesterday must land in yesterday's rollup,
	// not today's.
	e := newTestEngine(t)
	id, key := mustCreate(t, e, "vps-1")

	noon := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	e.now = func() time.Time { return noon }

	today := baseReport(key, noon)
	today.TokenDelta = 300
	require.NoError(t, e.ProcessReport(context.Background(), today))

	delayed := baseReport(key, noon.AddDate(0, 0, -1))
	delayed.TokenDelta = 700
	require.NoError(t, e.ProcessReport(context.Background(), delayed))

	card, err := e.DeviceCard(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(300), card.Tokens.Today)
	require.Equal(t, int64(700), card.Tokens.Yesterday)
	require.Equal(t, int64(1000), card.Tokens.Cumulative)
	require.InDelta(t, 0.001, card.Tokens.CumulativeCost, 1e-9)
}

func TestRollupEqualsSumUnderInterleaving(t *testing.T) {
	e := newTestEngine(t)
	id, key := mustCreate(t, e, "vps-1")

	noon := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	e.now = func() time.Time { return noon }

	var wantToday, wantYesterday int64
	deltas := []struct {
		daysAgo int
		delta   int64
	}{
		{0, 10}, {1, 20}, {0, 30}, {1, 40}, {0, 50}, {0, 5}, {1, 15},
	}
	for i, d := range deltas {
		ts := noon.AddDate(0, 0, -d.daysAgo).Add(time.Duration(i) * time.Minute)
		report := baseReport(key, ts)
		report.TokenDelta = d.delta
		require.NoError(t, e.ProcessReport(context.Background(), report))
		if d.daysAgo == 0 {
			wantToday += d.delta
		} else {
			wantYesterday += d.delta
		}
	}

	card, err := e.DeviceCard(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, wantToday, card.Tokens.Today)
	require.Equal(t, wantYesterday, card.Tokens.Yesterday)
	require.Equal(t, wantToday+wantYesterday, card.Tokens.Cumulative)
}
