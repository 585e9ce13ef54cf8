package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/clawwatch/internal/engine"
	"github.com/vesaa/clawwatch/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func createDevice(t *testing.T, s *Store, name string) *models.Device {
	t.Helper()
	dev := &models.Device{
		Name:    name,
		KeyHash: engine.HashKey(name + "-key"),
		Status:  models.StatusUnknown,
	}
	require.NoError(t, s.CreateDevice(dev))
	require.NotZero(t, dev.ID)
	return dev
}

func TestCreateAndLoadDevices(t *testing.T) {
	s := newTestStore(t)
	createDevice(t, s, "vps-1")
	createDevice(t, s, "vps-2")

	devices, err := s.LoadDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)

	// Unique name constraint.
	err = s.CreateDevice(&models.Device{Name: "vps-1", KeyHash: engine.HashKey("other")})
	require.Error(t, err)
}

func TestApplyReportUpsertsRollup(t *testing.T) {
	s := newTestStore(t)
	dev := createDevice(t, s, "vps-1")

	now := time.Now()
	up := engine.ReportUpdate{
		LastSeen:     now,
		Status:       models.StatusOnline,
		PublicIP:     "203.0.113.7",
		AgentRunning: true,
		AgentVersion: "2.1.0",
		Date:         "2026-08-31",
		TokenDelta:   1200,
	}
	require.NoError(t, s.ApplyReport(dev.ID, up))

	// Second report on the same date accumulates into the same row.
	up.TokenDelta = 800
	require.NoError(t, s.ApplyReport(dev.ID, up))

	// Zero delta writes no rollup.
	up.TokenDelta = 0
	require.NoError(t, s.ApplyReport(dev.ID, up))

	rollups, err := s.LoadRollups()
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	require.Equal(t, dev.ID, rollups[0].DeviceID)
	require.Equal(t, "2026-08-31", rollups[0].Date)
	require.Equal(t, int64(2000), rollups[0].Tokens)

	devices, err := s.LoadDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, models.StatusOnline, devices[0].Status)
	require.Equal(t, "203.0.113.7", devices[0].PublicIP)
	require.Equal(t, "2.1.0", devices[0].AgentVersion)
	require.True(t, devices[0].AgentRunning)
	require.NotNil(t, devices[0].LastSeen)
}

func TestApplyReportSeparateDates(t *testing.T) {
	s := newTestStore(t)
	dev := createDevice(t, s, "vps-1")

	now := time.Now()
	require.NoError(t, s.ApplyReport(dev.ID, engine.ReportUpdate{
		LastSeen: now, Status: models.StatusOnline, Date: "2026-08-30", TokenDelta: 700,
	}))
	require.NoError(t, s.ApplyReport(dev.ID, engine.ReportUpdate{
		LastSeen: now, Status: models.StatusOnline, Date: "2026-08-31", TokenDelta: 300,
	}))

	rollups, err := s.LoadRollups()
	require.NoError(t, err)
	require.Len(t, rollups, 2)
}

func TestSetStatus(t *testing.T) {
	s := newTestStore(t)
	dev := createDevice(t, s, "vps-1")

	require.NoError(t, s.SetStatus(dev.ID, models.StatusOffline))

	devices, err := s.LoadDevices()
	require.NoError(t, err)
	require.Equal(t, models.StatusOffline, devices[0].Status)
}

func TestDeleteDeviceCascadesRollups(t *testing.T) {
	s := newTestStore(t)
	dev := createDevice(t, s, "vps-1")
	keep := createDevice(t, s, "vps-2")

	now := time.Now()
	require.NoError(t, s.ApplyReport(dev.ID, engine.ReportUpdate{
		LastSeen: now, Status: models.StatusOnline, Date: "2026-08-31", TokenDelta: 100,
	}))
	require.NoError(t, s.ApplyReport(keep.ID, engine.ReportUpdate{
		LastSeen: now, Status: models.StatusOnline, Date: "2026-08-31", TokenDelta: 200,
	}))

	require.NoError(t, s.DeleteDevice(dev.ID))

	devices, err := s.LoadDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, keep.ID, devices[0].ID)

	rollups, err := s.LoadRollups()
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	require.Equal(t, keep.ID, rollups[0].DeviceID)
}

func TestEngineWarmLoadFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	dev := createDevice(t, s, "vps-1")
	require.NoError(t, s.ApplyReport(dev.ID, engine.ReportUpdate{
		LastSeen: time.Now(), Status: models.StatusOnline, Date: "2026-08-31", TokenDelta: 500,
	}))

	// A fresh store on the same file feeds a fresh engine.
	s2, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	eng, err := engine.New(engine.Rules{
		ReportInterval:   30 * time.Second,
		OfflineThreshold: 60 * time.Second,
		MetricRetention:  100,
		LogCap:           20,
	}, s2, zerolog.Nop())
	require.NoError(t, err)

	devices, err := eng.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, models.StatusOnline, devices[0].Status)

	card, err := eng.DeviceCard(context.Background(), dev.ID)
	require.NoError(t, err)
	require.Equal(t, int64(500), card.Tokens.Cumulative)
}
