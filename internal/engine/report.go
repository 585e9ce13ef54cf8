package engine

import (
	"context"
	"fmt"

	"github.com/vesaa/clawwatch/internal/models"
)

// validateReport checks schema and ranges before any state is touched.
// Required numeric fields must be present; percentages must be 0-100.
func validateReport(r *models.Report) error {
	pcts := []struct {
		name  string
		value *float64
	}{
		{"cpu_percent", r.CPUPercent},
		{"memory_percent", r.MemoryPercent},
		{"disk_percent", r.DiskPercent},
	}
	for _, p := range pcts {
		if p.value == nil {
			return badRequest(p.name, "required")
		}
		if *p.value < 0 || *p.value > 100 {
			return badRequest(p.name, fmt.Sprintf("out of range: %v", *p.value))
		}
	}

	abs := []struct {
		name  string
		value float64
	}{
		{"memory_total", r.MemoryTotal},
		{"memory_used", r.MemoryUsed},
		{"disk_total", r.DiskTotal},
		{"disk_used", r.DiskUsed},
		{"upload_speed", r.UploadSpeed},
		{"download_speed", r.DownloadSpeed},
	}
	for _, a := range abs {
		if a.value < 0 {
			return badRequest(a.name, fmt.Sprintf("must not be negative: %v", a.value))
		}
	}

	if r.TokenDelta < 0 {
		return badRequest("token_delta", fmt.Sprintf("must not be negative: %d", r.TokenDelta))
	}
	for i, l := range r.Logs {
		if l.Message == "" {
			return badRequest(fmt.Sprintf("logs[%d].message", i), "must not be empty")
		}
	}
	return nil
}

// ProcessReport runs the full ingestion pipeline for one agent report:
// auth gate, schema validation, then — under the device's lock — the
// durable write followed by every in-memory sub-update. The sub-updates
// apply together or not at all; a storage failure surfaces as a single
// Internal error with no in-memory state touched.
func (e *Engine) ProcessReport(ctx context.Context, r *models.Report) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}

	ds, err := e.authenticate(r.Key)
	if err != nil {
		return err
	}
	if err := validateReport(r); err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	now := e.now()

	// Report timestamp: agent-supplied when present, clamped so a skewed
	// clock cannot push last-seen beyond one report period into the future.
	ts := now
	if r.Timestamp != nil {
		ts = *r.Timestamp
		if max := now.Add(e.rules.ReportInterval); ts.After(max) {
			ts = max
		}
	}

	// Liveness is about recency of contact: an old delayed report still
	// promotes, but never regresses the stored last-seen.
	lastSeen := ts
	if ds.rec.LastSeen != nil && ds.rec.LastSeen.After(lastSeen) {
		lastSeen = *ds.rec.LastSeen
	}

	date := dateKey(ts)
	if e.store != nil {
		up := ReportUpdate{
			LastSeen:     lastSeen,
			Status:       models.StatusOnline,
			PublicIP:     r.PublicIP,
			AgentRunning: r.AgentRunning,
			AgentVersion: r.AgentVersion,
			Date:         date,
			TokenDelta:   r.TokenDelta,
		}
		if err := e.store.ApplyReport(ds.rec.ID, up); err != nil {
			return internal("persisting report", err)
		}
	}

	// Past this point nothing can fail; all sub-updates land together.
	seen := lastSeen
	ds.rec.LastSeen = &seen
	ds.rec.Status = models.StatusOnline
	ds.rec.AgentRunning = r.AgentRunning
	if r.AgentVersion != "" {
		ds.rec.AgentVersion = r.AgentVersion
	}
	if r.PublicIP != "" {
		ds.rec.PublicIP = r.PublicIP
	}

	ds.series.insert(models.MetricSample{
		DeviceID:      ds.rec.ID,
		Timestamp:     ts,
		CPUPercent:    *r.CPUPercent,
		MemoryPercent: *r.MemoryPercent,
		MemoryTotal:   r.MemoryTotal,
		MemoryUsed:    r.MemoryUsed,
		DiskPercent:   *r.DiskPercent,
		DiskTotal:     r.DiskTotal,
		DiskUsed:      r.DiskUsed,
		UploadSpeed:   r.UploadSpeed,
		DownloadSpeed: r.DownloadSpeed,
	})

	ds.ledger.add(date, r.TokenDelta)

	if len(r.Logs) > 0 {
		batch := make([]models.LogEntry, 0, len(r.Logs))
		for _, l := range r.Logs {
			lts := ts
			if l.Timestamp != nil {
				lts = *l.Timestamp
			}
			level := l.Level
			if level == "" {
				level = "error"
			}
			batch = append(batch, models.LogEntry{
				DeviceID:  ds.rec.ID,
				Timestamp: lts,
				Level:     level,
				Message:   l.Message,
				Source:    l.Source,
			})
		}
		ds.logs.append(batch)
	}

	e.log.Debug().
		Uint("device", ds.rec.ID).
		Time("ts", ts).
		Int64("tokens", r.TokenDelta).
		Int("logs", len(r.Logs)).
		Msg("report accepted")
	return nil
}
