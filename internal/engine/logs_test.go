package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vesaa/clawwatch/internal/models"
)

func TestLogCapEvictsOldestFirst(t *testing.T) {
	// Scenario: one report carries 50 log lines while the cap is 20;
	// recent(20) returns exactly the 20 newest, newest first, with none
	// of the 30 oldest present.
	e := newTestEngine(t) // LogCap: 20
	id, key := mustCreate(t, e, "vps-1")

	base := time.Now().Add(-time.Hour)
	report := baseReport(key, base)
	for i := 0; i < 50; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		report.Logs = append(report.Logs, models.ReportLog{
			Timestamp: &ts,
			Message:   fmt.Sprintf("line %d", i),
		})
	}
	require.NoError(t, e.ProcessReport(context.Background(), report))

	got, err := e.RecentLogs(context.Background(), id, 20)
	require.NoError(t, err)
	require.Len(t, got, 20)
	for i, entry := range got {
		require.Equal(t, fmt.Sprintf("line %d", 49-i), entry.Message)
	}
	for i := 1; i < len(got); i++ {
		require.False(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}
}

func TestRecentLimitSmallerThanStore(t *testing.T) {
	e := newTestEngine(t)
	id, key := mustCreate(t, e, "vps-1")

	base := time.Now().Add(-time.Hour)
	report := baseReport(key, base)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		report.Logs = append(report.Logs, models.ReportLog{Timestamp: &ts, Message: fmt.Sprintf("line %d", i)})
	}
	require.NoError(t, e.ProcessReport(context.Background(), report))

	got, err := e.RecentLogs(context.Background(), id, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "line 4", got[0].Message)
	require.Equal(t, "line 3", got[1].Message)
}

func TestFleetRecentLogsMergesByTimestamp(t *testing.T) {
	e := newTestEngine(t)
	_, keyA := mustCreate(t, e, "vps-a")
	_, keyB := mustCreate(t, e, "vps-b")

	base := time.Now().Add(-time.Hour)
	reportA := baseReport(keyA, base)
	reportB := baseReport(keyB, base)
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		line := models.ReportLog{Timestamp: &ts, Message: fmt.Sprintf("t+%dm", i)}
		if i%2 == 0 {
			reportA.Logs = append(reportA.Logs, line)
		} else {
			reportB.Logs = append(reportB.Logs, line)
		}
	}
	require.NoError(t, e.ProcessReport(context.Background(), reportA))
	require.NoError(t, e.ProcessReport(context.Background(), reportB))

	got, err := e.FleetRecentLogs(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, "t+5m", got[0].Message)
	require.Equal(t, "t+4m", got[1].Message)
	require.Equal(t, "t+3m", got[2].Message)
	require.Equal(t, "t+2m", got[3].Message)
}

func TestMergeRecentEmptySources(t *testing.T) {
	require.Empty(t, mergeRecent(nil, 10))
	require.Empty(t, mergeRecent([][]models.LogEntry{{}, {}}, 10))
}
