package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/clawwatch/internal/models"
)

// newTestEngine builds an in-memory engine with a controllable clock.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Rules{
		ReportInterval:   30 * time.Second,
		OfflineThreshold: 60 * time.Second,
		MetricRetention:  100,
		LogCap:           20,
		PricePerMillion:  1.0,
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	return e
}

// mustCreate registers a device and returns its id and clear API key.
func mustCreate(t *testing.T, e *Engine, name string) (uint, string) {
	t.Helper()
	dev, key, err := e.CreateDevice(context.Background(), name, "vps", "")
	require.NoError(t, err)
	require.Len(t, key, 64)
	return dev.ID, key
}

func fptr(v float64) *float64 { return &v }

// baseReport returns a minimal valid report for the given key.
func baseReport(key string, ts time.Time) *models.Report {
	return &models.Report{
		Key:           key,
		Timestamp:     &ts,
		CPUPercent:    fptr(10),
		MemoryPercent: fptr(20),
		DiskPercent:   fptr(30),
	}
}

func TestHashKeyIsStable(t *testing.T) {
	require.Equal(t, HashKey("abc"), HashKey("abc"))
	require.NotEqual(t, HashKey("abc"), HashKey("abd"))
	require.Len(t, HashKey("abc"), 64)
}

func TestCheckCtxMapsToTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t)
	_, err := e.FleetSummary(ctx)
	require.Error(t, err)
	require.Equal(t, KindTimeout, KindOf(err))
}
