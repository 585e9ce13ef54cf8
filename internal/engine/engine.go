package engine

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vesaa/clawwatch/internal/models"
)

// Rules is the externally supplied tuning surface of the engine.
type Rules struct {
	// ReportInterval is the expected agent report period. It also bounds
	// how far into the future a report timestamp is trusted.
	ReportInterval time.Duration
	// OfflineThreshold is the last-seen age past which the sweep demotes.
	OfflineThreshold time.Duration
	// MetricRetention is the max samples kept per device.
	MetricRetention int
	// LogCap is the max log entries kept per device.
	LogCap int
	// PricePerMillion prices token usage at query time, dollars per 1M.
	PricePerMillion float64
}

// ReportUpdate is the durable slice of one accepted report, written to
// storage before the in-memory state mutates.
type ReportUpdate struct {
	LastSeen     time.Time
	Status       models.Status
	PublicIP     string
	AgentRunning bool
	AgentVersion string
	Date         string
	TokenDelta   int64
}

// Storage persists device records and token rollups. A nil Storage runs
// the engine fully in memory (tests, ephemeral deployments).
type Storage interface {
	CreateDevice(dev *models.Device) error
	DeleteDevice(id uint) error
	ApplyReport(id uint, up ReportUpdate) error
	SetStatus(id uint, status models.Status) error
	LoadDevices() ([]models.Device, error)
	LoadRollups() ([]models.TokenRollup, error)
}

// Engine owns all per-device state. Each device has its own lock; a
// report, a sweep step and a query for the same device serialize on it,
// while different devices proceed fully in parallel.
type Engine struct {
	rules Rules
	store Storage
	log   zerolog.Logger

	// now is swapped out by tests to drive liveness deterministically.
	now func() time.Time

	mu      sync.RWMutex
	devices map[uint]*deviceState
	byKey   map[string]uint // key hash (hex) → device id
	nextID  uint            // id source when store is nil
}

type deviceState struct {
	mu     sync.Mutex
	rec    models.Device
	series *sampleSeries
	ledger *tokenLedger
	logs   *logRing
}

// New builds an engine and warm-loads devices and rollups from storage.
func New(rules Rules, store Storage, log zerolog.Logger) (*Engine, error) {
	e := &Engine{
		rules:   rules,
		store:   store,
		log:     log,
		now:     time.Now,
		devices: make(map[uint]*deviceState),
		byKey:   make(map[string]uint),
	}
	if store == nil {
		return e, nil
	}

	devices, err := store.LoadDevices()
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	for _, d := range devices {
		e.devices[d.ID] = e.newState(d)
		e.byKey[d.KeyHash] = d.ID
		if d.ID > e.nextID {
			e.nextID = d.ID
		}
	}

	rollups, err := store.LoadRollups()
	if err != nil {
		return nil, fmt.Errorf("loading rollups: %w", err)
	}
	for _, r := range rollups {
		if ds, ok := e.devices[r.DeviceID]; ok {
			ds.ledger.restore(r.Date, r.Tokens)
		}
	}

	log.Info().Int("devices", len(devices)).Int("rollups", len(rollups)).Msg("engine warm-loaded")
	return e, nil
}

func (e *Engine) newState(rec models.Device) *deviceState {
	return &deviceState{
		rec:    rec,
		series: newSampleSeries(e.rules.MetricRetention),
		ledger: newTokenLedger(),
		logs:   newLogRing(e.rules.LogCap),
	}
}

// HashKey returns the stored form of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// authenticate resolves a presented key to its device. The index lookup
// is by digest; the digest is then re-compared in constant time so a
// mismatched key never short-circuits differently from an unknown one.
func (e *Engine) authenticate(key string) (*deviceState, error) {
	if key == "" {
		return nil, unauthorized("missing API key")
	}
	hash := HashKey(key)

	e.mu.RLock()
	id, ok := e.byKey[hash]
	ds := e.devices[id]
	e.mu.RUnlock()

	if !ok || ds == nil {
		return nil, unauthorized("invalid API key")
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(ds.rec.KeyHash)) != 1 {
		return nil, unauthorized("invalid API key")
	}
	return ds, nil
}

// state returns the live state for a device id.
func (e *Engine) state(id uint) (*deviceState, error) {
	e.mu.RLock()
	ds, ok := e.devices[id]
	e.mu.RUnlock()
	if !ok {
		return nil, notFound(fmt.Sprintf("device %d not found", id))
	}
	return ds, nil
}

// checkCtx converts an expired or canceled context into a Timeout error
// so callers see one retryable kind for all deadline failures.
func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return timeout(err)
	}
	return nil
}

// dateKey buckets a timestamp into a server-local calendar date.
func dateKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
