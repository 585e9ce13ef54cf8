package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vesaa/clawwatch/internal/config"
	"github.com/vesaa/clawwatch/internal/models"
)

// Run starts the agent main loop: collect, assemble a report, POST it
// to the server data plane, repeat every cfg.AgentInterval seconds.
// Liveness on the server side is recency-based, so an occasional
// dropped report is tolerable; each POST still retries with backoff.
func Run(cfg *config.Config, log zerolog.Logger) error {
	if cfg.AgentKey == "" {
		return fmt.Errorf("agent_key is not set — create the device on the server and copy its key")
	}

	base := fmt.Sprintf("http://%s", cfg.AgentJoinAddr)
	collector := NewCollector()
	watcher := NewWatcher(cfg.AgentWatchBinary, cfg.AgentStateFile, cfg.AgentLogFile)
	retry := newRetrier(cfg.AgentRetryInitialMs, cfg.AgentRetryMaxMs, cfg.AgentRetries, log)

	// Warmup: seed the bandwidth and token baselines before the first
	// real report.
	_, _ = collector.Collect()
	_ = watcher.TokenDelta()

	ticker := time.NewTicker(time.Duration(cfg.AgentInterval) * time.Second)
	defer ticker.Stop()

	log.Info().Str("server", base).Int("interval_s", cfg.AgentInterval).Msg("agent reporting loop started")
	for range ticker.C {
		snap, err := collector.Collect()
		if err != nil {
			log.Error().Err(err).Msg("collect failed")
			continue
		}

		running, version := watcher.Probe()
		now := time.Now()
		report := models.Report{
			Key:           cfg.AgentKey,
			Timestamp:     &now,
			CPUPercent:    &snap.CPUPercent,
			MemoryPercent: &snap.MemoryPercent,
			MemoryTotal:   snap.MemoryTotal,
			MemoryUsed:    snap.MemoryUsed,
			DiskPercent:   &snap.DiskPercent,
			DiskTotal:     snap.DiskTotal,
			DiskUsed:      snap.DiskUsed,
			UploadSpeed:   snap.UploadSpeed,
			DownloadSpeed: snap.DownloadSpeed,
			PublicIP:      snap.LocalIP,
			AgentRunning:  running,
			AgentVersion:  version,
			TokenDelta:    watcher.TokenDelta(),
			Logs:          watcher.TailLogs(),
		}

		err = retry.do(func() error {
			return postJSON(base+"/api/report", report)
		}, isRetryable)
		if err != nil {
			log.Error().Err(err).Msg("report failed")
			continue
		}

		log.Info().
			Float64("cpu", snap.CPUPercent).
			Float64("mem", snap.MemoryPercent).
			Int64("tokens", report.TokenDelta).
			Int("logs", len(report.Logs)).
			Msg("report sent")
	}
	return nil
}

// postJSON sends v as JSON via HTTP POST. Non-2xx responses become
// statusError so the retrier can tell transient from terminal.
func postJSON(url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("server rejected API key (401) — check agent_key in config")
	}
	if resp.StatusCode >= 400 {
		return statusError{status: resp.StatusCode}
	}
	return nil
}
