package models

import "time"

// Report is the periodic payload an agent POSTs to the data plane.
// The API key travels in the body, not a header, so a report is a
// single self-contained document. Percent fields are pointers so the
// server can tell "absent" from "zero" and reject incomplete reports.
type Report struct {
	Key string `json:"key"`

	// Optional agent-side timestamp; server time is the fallback.
	// Reports may arrive out of order — the server never regresses
	// last-seen because of an old timestamp.
	Timestamp *time.Time `json:"timestamp,omitempty"`

	CPUPercent    *float64 `json:"cpu_percent"`
	MemoryPercent *float64 `json:"memory_percent"`
	MemoryTotal   float64  `json:"memory_total"`
	MemoryUsed    float64  `json:"memory_used"`
	DiskPercent   *float64 `json:"disk_percent"`
	DiskTotal     float64  `json:"disk_total"`
	DiskUsed      float64  `json:"disk_used"`
	UploadSpeed   float64  `json:"upload_speed"`
	DownloadSpeed float64  `json:"download_speed"`

	PublicIP string `json:"public_ip,omitempty"`

	// Watched process state.
	AgentRunning bool   `json:"agent_running"`
	AgentVersion string `json:"agent_version,omitempty"`

	// Tokens consumed since the previous report.
	TokenDelta int64 `json:"token_delta"`

	Logs []ReportLog `json:"logs,omitempty"`
}

// ReportLog is one log line embedded in a report.
type ReportLog struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Level     string     `json:"level,omitempty"`
	Message   string     `json:"message"`
	Source    string     `json:"source,omitempty"`
}

// TokenUsage carries today/yesterday/cumulative token figures plus the
// cost estimates derived from the configured price per million tokens.
type TokenUsage struct {
	Today          int64   `json:"today"`
	Yesterday      int64   `json:"yesterday"`
	Cumulative     int64   `json:"cumulative"`
	TodayCost      float64 `json:"today_cost"`
	YesterdayCost  float64 `json:"yesterday_cost"`
	CumulativeCost float64 `json:"cumulative_cost"`
}

// DeviceCard is the per-device read view consumed by the dashboard.
type DeviceCard struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	DeviceType   string     `json:"device_type"`
	PublicIP     string     `json:"public_ip,omitempty"`
	Status       Status     `json:"status"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	AgentRunning bool       `json:"agent_running"`
	AgentVersion string     `json:"agent_version,omitempty"`

	Latest  *MetricSample `json:"latest,omitempty"`
	Tokens  TokenUsage    `json:"tokens"`
	LastLog *LogEntry     `json:"last_log,omitempty"`
}

// FleetSummary is the fleet-wide read view.
type FleetSummary struct {
	Total   int          `json:"total"`
	Online  int          `json:"online"`
	Offline int          `json:"offline"`
	Unknown int          `json:"unknown"`
	Devices []DeviceCard `json:"devices"`
}

// TrendPoint is one downsampled point of a metric trend series.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
