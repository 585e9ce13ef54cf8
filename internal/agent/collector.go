// Package agent implements the ClawWatch reporting agent. It
// periodically collects system telemetry via gopsutil, probes the
// watched process, and POSTs reports to the server data plane.
package agent

import (
	"net"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// Snapshot holds a single collection cycle's resource data.
type Snapshot struct {
	LocalIP string

	CPUPercent float64

	MemoryPercent float64
	MemoryTotal   float64
	MemoryUsed    float64

	DiskPercent float64
	DiskTotal   float64
	DiskUsed    float64

	UploadSpeed   float64 // bytes/s since last snapshot
	DownloadSpeed float64 // bytes/s since last snapshot

	CollectedAt time.Time
}

// Collector gathers system metrics periodically.
type Collector struct {
	mu          sync.Mutex
	prevRx      uint64
	prevTx      uint64
	prevTime    time.Time
	initialized bool
}

// NewCollector creates a ready-to-use Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect gathers the current system snapshot.
func (c *Collector) Collect() (*Snapshot, error) {
	snap := &Snapshot{
		LocalIP:     localIP(),
		CollectedAt: time.Now(),
	}

	// CPU
	if pcts, err := cpu.Percent(500*time.Millisecond, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}

	// Memory
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vm.UsedPercent
		snap.MemoryTotal = float64(vm.Total)
		snap.MemoryUsed = float64(vm.Used)
	}

	// Disk: fullest mount
	snap.DiskPercent, snap.DiskTotal, snap.DiskUsed = fullestDisk()

	// Network bandwidth (delta-based)
	up, down := c.netBandwidth()
	snap.UploadSpeed = up
	snap.DownloadSpeed = down

	return snap, nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// localIP returns the first non-loopback IPv4 address.
func localIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return ip.String()
			}
		}
	}
	return ""
}

// fullestDisk returns usage of the partition with the highest used
// percentage, with its totals.
func fullestDisk() (pct, total, used float64) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return 0, 0, 0
	}
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		if usage.UsedPercent > pct {
			pct = usage.UsedPercent
			total = float64(usage.Total)
			used = float64(usage.Used)
		}
	}
	return pct, total, used
}

// netBandwidth computes bytes/s since the last call using IOCounters deltas.
func (c *Collector) netBandwidth() (upBps, downBps float64) {
	stats, err := psnet.IOCounters(false) // aggregate all interfaces
	if err != nil || len(stats) == 0 {
		return 0, 0
	}
	now := time.Now()
	curTx := stats[0].BytesSent
	curRx := stats[0].BytesRecv

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		dt := now.Sub(c.prevTime).Seconds()
		if dt > 0 && curTx >= c.prevTx && curRx >= c.prevRx {
			upBps = float64(curTx-c.prevTx) / dt
			downBps = float64(curRx-c.prevRx) / dt
		}
		// counter reset (reboot) leaves both at 0
	}

	c.prevTx = curTx
	c.prevRx = curRx
	c.prevTime = now
	c.initialized = true
	return
}
