// Package metrics collects host-level resource readings for the health and
// status endpoints.
package metrics

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMetrics is a point-in-time view of the machine the engine runs on.
// Operators use it to judge whether the host has headroom for more
// simulation work.
type HostMetrics struct {
	CPU     CPUMetrics    `json:"cpu"`
	Memory  MemoryMetrics `json:"memory"`
	Uptime  int64         `json:"uptime"`   // seconds
	LoadAvg []float64     `json:"load_avg"` // 1, 5, 15 min
}

// CPUMetrics reports machine-wide CPU usage.
type CPUMetrics struct {
	UsagePercent float64 `json:"usage_percent"`
	Cores        int     `json:"cores"`
}

// MemoryMetrics reports machine-wide memory usage.
type MemoryMetrics struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// Collect gathers current host metrics. Individual read failures leave the
// corresponding section zeroed rather than failing the whole collection.
func Collect() *HostMetrics {
	metrics := &HostMetrics{}

	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		metrics.CPU.UsagePercent = percents[0]
	}
	if cores, err := cpu.Counts(true); err == nil {
		metrics.CPU.Cores = cores
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		metrics.Memory = MemoryMetrics{
			Total:       vmem.Total,
			Used:        vmem.Used,
			Available:   vmem.Available,
			UsedPercent: vmem.UsedPercent,
		}
	}

	if info, err := host.Info(); err == nil {
		metrics.Uptime = int64(info.Uptime)
	}
	if avg, err := load.Avg(); err == nil {
		metrics.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	return metrics
}
