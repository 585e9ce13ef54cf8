// Package store manages the ClawWatch database layer. It persists what
// must survive a restart — device records and token rollups — using
// GORM with SQLite. Metric samples and log entries are bounded windows
// owned by the engine and are not persisted.
package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/vesaa/clawwatch/internal/engine"
	"github.com/vesaa/clawwatch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implements engine.Storage on a SQLite database.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (or creates) the database at path and runs AutoMigrate.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&models.Device{}, &models.TokenRollup{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	log.Info().Str("path", path).Msg("database opened")
	return &Store{db: db, log: log}, nil
}

// CreateDevice inserts a new device row; gorm fills rec.ID.
func (s *Store) CreateDevice(rec *models.Device) error {
	return s.db.Create(rec).Error
}

// DeleteDevice hard-deletes a device and cascades its token rollups.
func (s *Store) DeleteDevice(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("device_id = ?", id).Delete(&models.TokenRollup{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Device{}, id).Error
	})
}

// ApplyReport writes one accepted report's durable slice in a single
// transaction: the device's liveness fields plus the day's rollup.
func (s *Store) ApplyReport(id uint, up engine.ReportUpdate) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"last_seen":     up.LastSeen,
			"status":        up.Status,
			"agent_running": up.AgentRunning,
		}
		if up.AgentVersion != "" {
			fields["agent_version"] = up.AgentVersion
		}
		if up.PublicIP != "" {
			fields["public_ip"] = up.PublicIP
		}
		if err := tx.Model(&models.Device{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}

		if up.TokenDelta == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"tokens": gorm.Expr("tokens + ?", up.TokenDelta),
			}),
		}).Create(&models.TokenRollup{
			DeviceID: id,
			Date:     up.Date,
			Tokens:   up.TokenDelta,
		}).Error
	})
}

// SetStatus persists a sweep demotion (or any status change).
func (s *Store) SetStatus(id uint, status models.Status) error {
	return s.db.Model(&models.Device{}).Where("id = ?", id).Update("status", status).Error
}

// LoadDevices returns all device rows for the engine's warm load.
func (s *Store) LoadDevices() ([]models.Device, error) {
	var devices []models.Device
	if err := s.db.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// LoadRollups returns all rollup rows for the engine's warm load.
func (s *Store) LoadRollups() ([]models.TokenRollup, error) {
	var rollups []models.TokenRollup
	if err := s.db.Find(&rollups).Error; err != nil {
		return nil, err
	}
	return rollups, nil
}
