package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/vesaa/clawwatch/internal/models"
)

// CreateDevice registers a new device and returns its record together
// with the freshly generated API key. The clear key is never stored and
// never retrievable again.
func (e *Engine) CreateDevice(ctx context.Context, name, deviceType, notes string) (models.Device, string, error) {
	if err := checkCtx(ctx); err != nil {
		return models.Device{}, "", err
	}
	if name == "" {
		return models.Device{}, "", badRequest("name", "must not be empty")
	}
	if deviceType == "" {
		deviceType = "unknown"
	}

	key, err := generateKey()
	if err != nil {
		return models.Device{}, "", internal("generating API key", err)
	}

	rec := models.Device{
		Name:       name,
		DeviceType: deviceType,
		KeyHash:    HashKey(key),
		Notes:      notes,
		Status:     models.StatusUnknown,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ds := range e.devices {
		if ds.rec.Name == name {
			return models.Device{}, "", conflict(fmt.Sprintf("device name %q already exists", name))
		}
	}

	if e.store != nil {
		if err := e.store.CreateDevice(&rec); err != nil {
			return models.Device{}, "", internal("persisting device", err)
		}
	} else {
		e.nextID++
		rec.ID = e.nextID
	}

	e.devices[rec.ID] = e.newState(rec)
	e.byKey[rec.KeyHash] = rec.ID

	e.log.Info().Uint("device", rec.ID).Str("name", name).Msg("device created")
	return rec, key, nil
}

// DeleteDevice removes a device and all its dependent state: metric
// samples, token accounting and log entries go with it.
func (e *Engine) DeleteDevice(ctx context.Context, id uint) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	ds, ok := e.devices[id]
	if ok {
		delete(e.devices, id)
		delete(e.byKey, ds.rec.KeyHash)
	}
	e.mu.Unlock()

	if !ok {
		return notFound(fmt.Sprintf("device %d not found", id))
	}
	if e.store != nil {
		if err := e.store.DeleteDevice(id); err != nil {
			return internal("deleting device", err)
		}
	}

	e.log.Info().Uint("device", id).Str("name", ds.rec.Name).Msg("device deleted")
	return nil
}

// ListDevices returns snapshot copies of all device records, by id.
func (e *Engine) ListDevices(ctx context.Context) ([]models.Device, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	states := make([]*deviceState, 0, len(e.devices))
	for _, ds := range e.devices {
		states = append(states, ds)
	}
	e.mu.RUnlock()

	out := make([]models.Device, 0, len(states))
	for _, ds := range states {
		ds.mu.Lock()
		out = append(out, ds.rec)
		ds.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// generateKey produces a 64-hex-char random API key.
func generateKey() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
