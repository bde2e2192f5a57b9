// AngelaMos | 2026
// handler.go

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashtv/streaming-gateway/internal/billing"
	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/filelock"
)

// CacheChecker reports cache backend reachability. Everything else in
// the gateway treats the cache as fail-open; only health surfaces its
// true state.
type CacheChecker interface {
	Healthy(ctx context.Context) error
}

// SchedulerStatus exposes the billing scheduler to the health surface.
type SchedulerStatus interface {
	Status() billing.Status
}

type Handler struct {
	cache     CacheChecker
	locks     *filelock.Locker
	scheduler SchedulerStatus
	data      config.DataConfig
	shutdown  atomic.Bool
}

func NewHandler(
	cache CacheChecker,
	locks *filelock.Locker,
	scheduler SchedulerStatus,
	data config.DataConfig,
) *Handler {
	return &Handler{
		cache:     cache,
		locks:     locks,
		scheduler: scheduler,
		data:      data,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/api/health", h.Health)
}

func (h *Handler) SetShutdown(shutdown bool) {
	h.shutdown.Store(shutdown)
}

func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.Load() {
		h.write(w, http.StatusServiceUnavailable, map[string]string{
			"status": "shutting_down",
		})
		return
	}
	h.write(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthResponse is the full gateway health report. Cache outage
// degrades but does not fail the endpoint: the gateway keeps serving
// without it.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Cache     CheckResult     `json:"cache"`
	DataFiles []FileCheck     `json:"dataFiles"`
	FileLocks filelock.Stats  `json:"fileLocks"`
	Scheduler *billing.Status `json:"billingScheduler,omitempty"`
	Runtime   RuntimeInfo     `json:"runtime"`
}

type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type FileCheck struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Size    int64  `json:"size,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.Load() {
		h.write(w, http.StatusServiceUnavailable, map[string]string{
			"status": "shutting_down",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Cache:     h.checkCache(ctx),
		DataFiles: h.checkDataFiles(),
		FileLocks: h.locks.Stats(),
		Runtime: RuntimeInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAlloc:     memStats.Alloc,
			NumGC:        memStats.NumGC,
		},
	}

	if h.scheduler != nil {
		st := h.scheduler.Status()
		resp.Scheduler = &st
	}

	// Data files are load-bearing; the cache is not.
	status := http.StatusOK
	for _, f := range resp.DataFiles {
		if !f.Exists {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}
	if !resp.Cache.Healthy && resp.Status == "ok" {
		resp.Status = "degraded_cache"
	}

	h.write(w, status, resp)
}

func (h *Handler) checkCache(ctx context.Context) CheckResult {
	check := CheckResult{Healthy: true}

	if h.cache == nil {
		check.Healthy = false
		check.Message = "cache checker not configured"
		return check
	}

	start := time.Now()
	err := h.cache.Healthy(ctx)
	check.Latency = time.Since(start).String()

	if err != nil {
		check.Healthy = false
		check.Message = "ping failed"
	}

	return check
}

func (h *Handler) checkDataFiles() []FileCheck {
	paths := []string{h.data.UsersFile, h.data.TransactionsFile}

	checks := make([]FileCheck, 0, len(paths))
	for _, path := range paths {
		check := FileCheck{Path: path}

		info, err := os.Stat(path)
		switch {
		case err == nil:
			check.Exists = true
			check.Size = info.Size()
		case os.IsNotExist(err):
			check.Message = "missing"
		default:
			check.Message = err.Error()
		}

		checks = append(checks, check)
	}
	return checks
}

func (h *Handler) write(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort response
	_ = json.NewEncoder(w).Encode(data)
}
