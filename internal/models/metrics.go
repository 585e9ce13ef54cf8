package models

import "time"

// MetricSample is one point-in-time resource snapshot for a device.
// Samples are immutable once stored; the engine keeps a bounded,
// ascending-by-timestamp series per device.
type MetricSample struct {
	DeviceID  uint      `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	CPUPercent float64 `json:"cpu_percent"` // 0-100

	MemoryPercent float64 `json:"memory_percent"` // 0-100
	MemoryTotal   float64 `json:"memory_total"`   // bytes
	MemoryUsed    float64 `json:"memory_used"`    // bytes

	DiskPercent float64 `json:"disk_percent"` // 0-100
	DiskTotal   float64 `json:"disk_total"`   // bytes
	DiskUsed    float64 `json:"disk_used"`    // bytes

	UploadSpeed   float64 `json:"upload_speed"`   // bytes/s
	DownloadSpeed float64 `json:"download_speed"` // bytes/s
}

// LogEntry is one error/crash record reported by an agent. The engine
// keeps at most the configured cap of recent entries per device.
type LogEntry struct {
	DeviceID  uint      `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
}
