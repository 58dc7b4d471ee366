package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/response"
)

const metricsInterval = 7 * time.Second

// QueueInspector reports worker queue depths.
type QueueInspector interface {
	Depths(ctx context.Context, queues ...string) (map[string]int64, error)
}

// Pinger checks a backing store.
type Pinger func(ctx context.Context) error

// SessionCounter reports how many exam sessions are live in memory.
type SessionCounter interface {
	LiveCount() int
}

// SystemHandler serves health checks and streams runtime metrics via SSE.
type SystemHandler struct {
	queues    QueueInspector
	sessions  SessionCounter
	checks    map[string]Pinger
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates the handler. queues may be nil when no redis is
// configured; checks maps a dependency name to its ping.
func NewSystemHandler(queues QueueInspector, sessions SessionCounter, checks map[string]Pinger, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		queues:    queues,
		sessions:  sessions,
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	healthy := true
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = "down"
			healthy = false
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			continue
		}
		deps[name] = "up"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	response.Success(c, status, gin.H{"status": state, "dependencies": deps})
}

// ---------- SSE Endpoint ----------

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	LiveSessions int `json:"live_sessions"`

	// Worker Queues
	QueuePersistResults int64 `json:"queue_persist_results"`
	QueueDailyRetries   int64 `json:"queue_daily_retries"`
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.NumGC = ms.NumGC

	if h.sessions != nil {
		m.LiveSessions = h.sessions.LiveCount()
	}

	if h.queues != nil {
		depths, err := h.queues.Depths(ctx, config.WorkerKey.PersistResultsQueue, config.WorkerKey.RetryDailyAttemptsQueue)
		if err == nil {
			m.QueuePersistResults = depths[config.WorkerKey.PersistResultsQueue]
			m.QueueDailyRetries = depths[config.WorkerKey.RetryDailyAttemptsQueue]
		}
	}

	return m
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
