package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/plumeapp/plume/internal/config"
)

// SystemStats contains overall process statistics
type SystemStats struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	StartTime time.Time `json:"start_time"`
	UptimeSec float64   `json:"uptime_sec"`

	GoVersion     string  `json:"go_version"`
	NumGoroutines int     `json:"num_goroutines"`
	MemAllocMB    float64 `json:"mem_alloc_mb"`
	MemSysMB      float64 `json:"mem_sys_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// Diagnostics serves /metrics, /healthz and /stats on a local listener
type Diagnostics struct {
	server    *http.Server
	logger    *Logger
	version   string
	commit    string
	startTime time.Time
}

// NewDiagnostics builds a diagnostics server for the given bind address
func NewDiagnostics(cfg *config.Diagnostics, metrics *Metrics, logger *Logger, version, commit string) *Diagnostics {
	d := &Diagnostics{
		logger:    logger.WithComponent("diagnostics"),
		version:   version,
		commit:    commit,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.CollectSystemStats())
	})

	d.server = &http.Server{
		Addr:    cfg.Bind,
		Handler: mux,
	}
	return d
}

// CollectSystemStats gathers runtime statistics
func (d *Diagnostics) CollectSystemStats() SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemStats{
		Version:       d.version,
		Commit:        d.commit,
		StartTime:     d.startTime,
		UptimeSec:     time.Since(d.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAllocMB:    float64(mem.Alloc) / 1024 / 1024,
		MemSysMB:      float64(mem.Sys) / 1024 / 1024,
		NumGC:         mem.NumGC,
	}
}

// Start begins serving in the background
func (d *Diagnostics) Start() {
	go func() {
		d.logger.Info("diagnostics listening", "addr", d.server.Addr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error("diagnostics server failed", "error", err)
		}
	}()
}

// Stop shuts the server down
func (d *Diagnostics) Stop(ctx context.Context) error {
	return d.server.Shutdown(ctx)
}
