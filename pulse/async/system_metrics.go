package async

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/buzzsnip/buzzsnip/logger"
	"go.uber.org/zap"
)

const bytesPerGB = 1024 * 1024 * 1024

// SystemMetrics is the host and worker snapshot served by the admin status endpoint.
// Host fields stay zero when the platform cannot report them.
type SystemMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskUsedGB    float64 `json:"disk_used_gb"`
	DiskTotalGB   float64 `json:"disk_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	UptimeSeconds uint64  `json:"uptime_seconds"`

	WorkersActive int `json:"workers_active"` // Workers currently dispatching
	WorkersTotal  int `json:"workers_total"`  // Configured workers
	JobsQueued    int `json:"jobs_queued"`
	JobsRunning   int `json:"jobs_running"`
	Ceiling       int `json:"max_concurrent_jobs"`
}

// GetSystemMetrics samples host usage and job counts. diskPath selects the
// filesystem to report, normally the data directory. Sampling failures are
// logged at debug level and leave the affected fields zero.
func (wp *WorkerPool) GetSystemMetrics(ctx context.Context, diskPath string) SystemMetrics {
	m := sampleHost(ctx, diskPath, wp.logger.SugaredLogger)

	if stats, err := wp.manager.Stats(ctx); err == nil {
		m.JobsQueued = stats.Queued
		m.JobsRunning = stats.Processing
		m.Ceiling = stats.Ceiling
	} else {
		wp.logger.Debugw("Failed to count jobs for system metrics", logger.FieldError, err)
	}

	status := wp.Status()
	m.WorkersActive = status.ActiveWorkers
	m.WorkersTotal = status.Workers
	return m
}

func sampleHost(ctx context.Context, diskPath string, log *zap.SugaredLogger) SystemMetrics {
	var m SystemMetrics

	// A short sampling window keeps the endpoint responsive
	if pct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	} else if err != nil {
		log.Debugw("Failed to sample CPU", logger.FieldError, err)
	}

	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemoryTotalGB = float64(v.Total) / bytesPerGB
		m.MemoryUsedGB = float64(v.Total-v.Available) / bytesPerGB
		m.MemoryPercent = v.UsedPercent
	} else {
		log.Debugw("Failed to get memory stats", logger.FieldError, err)
	}

	if diskPath == "" {
		diskPath = "/"
	}
	if u, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		m.DiskTotalGB = float64(u.Total) / bytesPerGB
		m.DiskUsedGB = float64(u.Used) / bytesPerGB
		m.DiskPercent = u.UsedPercent
	} else {
		log.Debugw("Failed to get disk usage", logger.FieldPath, diskPath, logger.FieldError, err)
	}

	if up, err := host.UptimeWithContext(ctx); err == nil {
		m.UptimeSeconds = up
	} else {
		log.Debugw("Failed to get host uptime", logger.FieldError, err)
	}

	return m
}
