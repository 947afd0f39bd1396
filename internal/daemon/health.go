package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Seldon-Engine/aof/internal/logging"
)

// ComponentStatus is the two-value status vocabulary used for individual
// component fields in HealthStatus.
type ComponentStatus string

const (
	ComponentOK      ComponentStatus = "ok"
	ComponentError   ComponentStatus = "error"
	ComponentRunning ComponentStatus = "running"
	ComponentStopped ComponentStatus = "stopped"
)

// Status is the daemon's overall health verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// TaskCounts mirrors a narrow slice of taskstore.CountByStatus for /status.
type TaskCounts struct {
	Open       int `json:"open"`
	Ready      int `json:"ready"`
	InProgress int `json:"inProgress"`
	Blocked    int `json:"blocked"`
	Done       int `json:"done"`
}

// Components reports the health of the daemon's constituent subsystems.
type Components struct {
	Scheduler   ComponentStatus `json:"scheduler"`
	Store       ComponentStatus `json:"store"`
	EventLogger ComponentStatus `json:"eventLogger"`
}

// ConfigSummary is the non-secret configuration surfaced for diagnostics.
type ConfigSummary struct {
	DataDir             string `json:"dataDir"`
	PollIntervalMs      int64  `json:"pollIntervalMs"`
	ProvidersConfigured int    `json:"providersConfigured"`
}

// HealthStatus is the full body returned by GET /status.
type HealthStatus struct {
	Status      Status        `json:"status"`
	Version     string        `json:"version"`
	UptimeS     float64       `json:"uptime"`
	LastPollAt  time.Time     `json:"lastPollAt"`
	LastEventAt time.Time     `json:"lastEventAt"`
	TaskCounts  TaskCounts    `json:"taskCounts"`
	Components  Components    `json:"components"`
	Config      ConfigSummary `json:"config"`
}

// StatusProvider supplies the live data HealthServer renders into
// HealthStatus; the daemon composition root implements it.
type StatusProvider interface {
	Status() HealthStatus
}

// HealthServer is the Unix-domain-socket HTTP server exposing /healthz
// and /status (and /metrics), adapted from the teacher's permission relay
// socket pattern: net.Listen("unix", path), stale-socket cleanup,
// os.MkdirAll on the socket's parent directory.
type HealthServer struct {
	socketPath string
	provider   StatusProvider
	metrics    *Metrics
	logger     logging.Logger
	version    string
	startedAt  time.Time

	shuttingDown atomic.Bool

	server   *http.Server
	listener net.Listener
}

// NewHealthServer builds a server that will listen on socketPath once Start is called.
func NewHealthServer(socketPath, version string, provider StatusProvider, metrics *Metrics, logger logging.Logger) *HealthServer {
	return &HealthServer{
		socketPath: socketPath,
		provider:   provider,
		metrics:    metrics,
		logger:     logging.OrNop(logger),
		version:    version,
		startedAt:  time.Now(),
	}
}

// Start unlinks any stale socket, listens, and begins serving. Returns
// once the listener is bound; serving happens in a background goroutine.
func (h *HealthServer) Start() error {
	if err := os.MkdirAll(filepath.Dir(h.socketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(h.socketPath) // stale socket from a prior, uncleanly-stopped process

	listener, err := net.Listen("unix", h.socketPath)
	if err != nil {
		return err
	}
	h.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/status", h.handleStatus)
	if h.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	h.server = &http.Server{Handler: mux}

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error("daemon: health server stopped: %v", err)
		}
	}()
	return nil
}

// SetShuttingDown flips /healthz to report error immediately, so
// supervisors observe the shutdown before the process actually exits.
func (h *HealthServer) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// Close stops serving and unlinks the socket file.
func (h *HealthServer) Close(ctx context.Context) error {
	if h.server != nil {
		if err := h.server.Shutdown(ctx); err != nil {
			_ = h.server.Close()
		}
	}
	return os.Remove(h.socketPath)
}

func (h *HealthServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if h.shuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.provider.Status()
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
