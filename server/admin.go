package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/version"
)

// HandleHealth handles GET /api/health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if s.getState() != ServerStateRunning {
		status = s.getState().String()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   version.ServiceName,
		"version":   version.Get().Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// AdminStatus is the body of GET /api/admin/status
type AdminStatus struct {
	async.SystemMetrics
	ActiveJobs    int    `json:"active_jobs"`
	QueueLength   int    `json:"queue_length"`
	Uptime        string `json:"uptime"`
	ServerUptime  string `json:"server_uptime"`
	TicksSince    int64  `json:"ticks_since_start"`
	LastTickAt    string `json:"last_tick_at,omitempty"`
	NextCleanup   string `json:"next_cleanup,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// HandleAdminStatus handles GET /api/admin/status
func (s *Server) HandleAdminStatus(w http.ResponseWriter, r *http.Request) {
	var status AdminStatus

	if s.deps.Pool != nil {
		status.SystemMetrics = s.deps.Pool.GetSystemMetrics(r.Context(), s.deps.DataDir)
	} else {
		stats, err := s.deps.Jobs.Stats(r.Context())
		if err != nil {
			s.writeFailure(w, r, err, "get system status")
			return
		}
		status.JobsQueued = stats.Queued
		status.JobsRunning = stats.Processing
		status.Ceiling = stats.Ceiling
	}

	status.ActiveJobs = status.JobsRunning
	status.QueueLength = status.JobsQueued
	status.Uptime = formatUptime(time.Duration(status.UptimeSeconds) * time.Second)
	status.ServerUptime = formatUptime(time.Since(s.started))

	if s.deps.Ticker != nil {
		ts := s.deps.Ticker.GetStats()
		status.TicksSince = ts.TicksSinceStart
		if !ts.LastTickAt.IsZero() {
			status.LastTickAt = ts.LastTickAt.UTC().Format(time.RFC3339)
		}
	}
	if s.deps.Janitor != nil {
		if next := s.deps.Janitor.Next(); !next.IsZero() {
			status.NextCleanup = next.UTC().Format(time.RFC3339)
		}
	}
	status.Timestamp = time.Now().UTC().Format(time.RFC3339)

	writeJSON(w, http.StatusOK, status)
}

// formatUptime renders d as "N days, H hours"
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days, %d hours", days, hours)
}
