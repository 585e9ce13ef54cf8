package engine

import (
	"context"
	"time"

	"github.com/vesaa/clawwatch/internal/models"
)

// Sweep demotes every Online or Unknown device whose last contact has
// aged past the offline threshold. It takes each device's own lock, so
// a sweep step and an in-flight report for the same device linearize;
// whichever runs last wins. A single device's storage failure is logged
// and does not stop the rest of the batch. Returns the demotion count.
func (e *Engine) Sweep(ctx context.Context) int {
	e.mu.RLock()
	states := make([]*deviceState, 0, len(e.devices))
	for _, ds := range e.devices {
		states = append(states, ds)
	}
	e.mu.RUnlock()

	now := e.now()
	demoted := 0
	for _, ds := range states {
		select {
		case <-ctx.Done():
			return demoted
		default:
		}

		ds.mu.Lock()
		stale := (ds.rec.Status == models.StatusOnline || ds.rec.Status == models.StatusUnknown) &&
			ds.rec.LastSeen != nil &&
			now.Sub(*ds.rec.LastSeen) > e.rules.OfflineThreshold
		if stale {
			ds.rec.Status = models.StatusOffline
			demoted++
			if e.store != nil {
				if err := e.store.SetStatus(ds.rec.ID, models.StatusOffline); err != nil {
					e.log.Warn().Err(err).Uint("device", ds.rec.ID).Msg("sweep: persisting demotion failed")
				}
			}
			e.log.Info().Uint("device", ds.rec.ID).Str("name", ds.rec.Name).Msg("device went offline")
		}
		ds.mu.Unlock()
	}
	return demoted
}

// RunSweeper runs Sweep on a fixed interval until ctx is canceled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", interval).Dur("threshold", e.rules.OfflineThreshold).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
