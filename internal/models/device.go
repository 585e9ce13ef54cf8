// Package models defines GORM data models and wire DTOs for ClawWatch.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Status is the derived liveness judgment for a device. It is never set
// directly by a client: reports promote to Online, the sweep demotes to
// Offline, and Unknown is the initial state before any report.
type Status string

const (
	StatusUnknown Status = "Unknown"
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// Device represents one monitored machine in the fleet.
// KeyHash is the SHA-256 hex digest of the device's API key; the clear
// key is generated at creation time and returned exactly once.
type Device struct {
	gorm.Model

	// Identity
	Name       string `gorm:"uniqueIndex;not null" json:"name"`
	DeviceType string `gorm:"default:'unknown'" json:"device_type"`
	KeyHash    string `gorm:"uniqueIndex;not null" json:"-"`
	PublicIP   string `json:"public_ip,omitempty"`
	Notes      string `json:"notes,omitempty"`

	// Liveness
	Status   Status     `gorm:"default:'Unknown'" json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Watched process, as last reported by the agent.
	AgentRunning bool   `json:"agent_running"`
	AgentVersion string `json:"agent_version,omitempty"`
}

// TokenRollup is the per-device, per-calendar-date token aggregate.
// Date is the server-local day in "2006-01-02" form. Rollups are only
// ever written by folding report deltas in, never set directly.
type TokenRollup struct {
	gorm.Model

	DeviceID uint   `gorm:"index:idx_rollup_device_date,unique;not null" json:"device_id"`
	Date     string `gorm:"index:idx_rollup_device_date,unique;not null" json:"date"`
	Tokens   int64  `json:"tokens"`
}
