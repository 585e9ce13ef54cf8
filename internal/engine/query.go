package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vesaa/clawwatch/internal/models"
)

// The query service is pure read composition. Every method snapshots
// per-device state under a short lock and serializes outside it, so
// queries never block ingestion for longer than a copy.

// DeviceCard returns the composed read view for one device.
func (e *Engine) DeviceCard(ctx context.Context, id uint) (models.DeviceCard, error) {
	if err := checkCtx(ctx); err != nil {
		return models.DeviceCard{}, err
	}
	ds, err := e.state(id)
	if err != nil {
		return models.DeviceCard{}, err
	}
	return e.card(ds), nil
}

func (e *Engine) card(ds *deviceState) models.DeviceCard {
	today := dateKey(e.now())
	yesterday := dateKey(e.now().AddDate(0, 0, -1))

	ds.mu.Lock()
	defer ds.mu.Unlock()

	card := models.DeviceCard{
		ID:           ds.rec.ID,
		Name:         ds.rec.Name,
		DeviceType:   ds.rec.DeviceType,
		PublicIP:     ds.rec.PublicIP,
		Status:       ds.rec.Status,
		LastSeen:     ds.rec.LastSeen,
		AgentRunning: ds.rec.AgentRunning,
		AgentVersion: ds.rec.AgentVersion,
	}

	if latest, ok := ds.series.latest(); ok {
		sample := latest
		card.Latest = &sample
	}
	if last, ok := ds.logs.latest(); ok {
		entry := last
		card.LastLog = &entry
	}

	todayTokens := ds.ledger.day(today)
	yesterdayTokens := ds.ledger.day(yesterday)
	total := ds.ledger.total()
	card.Tokens = models.TokenUsage{
		Today:          todayTokens,
		Yesterday:      yesterdayTokens,
		Cumulative:     total,
		TodayCost:      e.estimateCost(todayTokens),
		YesterdayCost:  e.estimateCost(yesterdayTokens),
		CumulativeCost: e.estimateCost(total),
	}
	return card
}

// estimateCost prices tokens at query time; nothing is ever stored.
func (e *Engine) estimateCost(tokens int64) float64 {
	return float64(tokens) / 1_000_000 * e.rules.PricePerMillion
}

// FleetSummary returns liveness counts plus a card per device.
func (e *Engine) FleetSummary(ctx context.Context) (models.FleetSummary, error) {
	if err := checkCtx(ctx); err != nil {
		return models.FleetSummary{}, err
	}

	e.mu.RLock()
	states := make([]*deviceState, 0, len(e.devices))
	for _, ds := range e.devices {
		states = append(states, ds)
	}
	e.mu.RUnlock()

	summary := models.FleetSummary{Devices: make([]models.DeviceCard, 0, len(states))}
	for _, ds := range states {
		card := e.card(ds)
		switch card.Status {
		case models.StatusOnline:
			summary.Online++
		case models.StatusOffline:
			summary.Offline++
		default:
			summary.Unknown++
		}
		summary.Devices = append(summary.Devices, card)
	}
	summary.Total = len(summary.Devices)
	sort.Slice(summary.Devices, func(i, j int) bool { return summary.Devices[i].ID < summary.Devices[j].ID })
	return summary, nil
}

// metricSelector maps a trend metric name to its sample field.
func metricSelector(metric string) (func(models.MetricSample) float64, error) {
	switch metric {
	case "cpu":
		return func(s models.MetricSample) float64 { return s.CPUPercent }, nil
	case "memory":
		return func(s models.MetricSample) float64 { return s.MemoryPercent }, nil
	case "disk":
		return func(s models.MetricSample) float64 { return s.DiskPercent }, nil
	case "upload":
		return func(s models.MetricSample) float64 { return s.UploadSpeed }, nil
	case "download":
		return func(s models.MetricSample) float64 { return s.DownloadSpeed }, nil
	default:
		return nil, badRequest("metric", fmt.Sprintf("unknown metric %q", metric))
	}
}

// Trend fetches the raw sample range and bucket-averages it down to
// approximately resolution points. The first and last points keep the
// first and last sample timestamps of the range.
func (e *Engine) Trend(ctx context.Context, id uint, metric string, from, to time.Time, resolution int) ([]models.TrendPoint, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	selector, err := metricSelector(metric)
	if err != nil {
		return nil, err
	}
	if resolution <= 0 {
		return nil, badRequest("resolution", "must be positive")
	}
	ds, err := e.state(id)
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	samples := ds.series.rangeBetween(from, to)
	ds.mu.Unlock()

	if len(samples) == 0 {
		return nil, nil
	}
	if len(samples) <= resolution {
		points := make([]models.TrendPoint, len(samples))
		for i, s := range samples {
			points[i] = models.TrendPoint{Timestamp: s.Timestamp, Value: selector(s)}
		}
		return points, nil
	}

	// Count-based bucketing: sample i lands in bucket i*resolution/n,
	// which spreads samples evenly and keeps the endpoints in the
	// first and last buckets.
	type bucket struct {
		ts    time.Time
		sum   float64
		count int
	}
	buckets := make([]bucket, 0, resolution)
	n := len(samples)
	for i, s := range samples {
		b := i * resolution / n
		if b == len(buckets) {
			buckets = append(buckets, bucket{ts: s.Timestamp})
		}
		buckets[len(buckets)-1].sum += selector(s)
		buckets[len(buckets)-1].count++
	}

	points := make([]models.TrendPoint, len(buckets))
	for i, b := range buckets {
		points[i] = models.TrendPoint{Timestamp: b.ts, Value: b.sum / float64(b.count)}
	}
	points[len(points)-1].Timestamp = samples[n-1].Timestamp
	return points, nil
}

// RecentLogs returns up to limit entries for one device, newest first.
func (e *Engine) RecentLogs(ctx context.Context, id uint, limit int) ([]models.LogEntry, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	ds, err := e.state(id)
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.logs.recent(limit), nil
}

// FleetRecentLogs merges every device's recent entries into one
// newest-first view of up to limit entries.
func (e *Engine) FleetRecentLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	states := make([]*deviceState, 0, len(e.devices))
	for _, ds := range e.devices {
		states = append(states, ds)
	}
	e.mu.RUnlock()

	sources := make([][]models.LogEntry, 0, len(states))
	for _, ds := range states {
		ds.mu.Lock()
		recent := ds.logs.recent(limit)
		ds.mu.Unlock()
		if len(recent) > 0 {
			sources = append(sources, recent)
		}
	}
	return mergeRecent(sources, limit), nil
}
