package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pair pipeline.
type Metrics struct {
	TicksTotal      prometheus.Counter
	DecodeErrors    prometheus.Counter
	WSReconnects    prometheus.Counter
	DroppedWrites   prometheus.Counter
	AlertsTotal     *prometheus.CounterVec // labels: kind
	RecomputeDur    prometheus.Histogram
	JoinedSamples   prometheus.Gauge // post-join sample size of the last cycle
	SnapshotPublish prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairwatch_ticks_total",
			Help: "Total ticks ingested and persisted",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairwatch_decode_errors_total",
			Help: "Malformed feed messages skipped",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairwatch_ws_reconnects_total",
			Help: "WebSocket reconnection attempts after stream errors",
		}),
		DroppedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairwatch_dropped_writes_total",
			Help: "Ticks dropped because the store write failed",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pairwatch_alerts_total",
			Help: "Threshold alerts emitted (by kind)",
		}, []string{"kind"}),
		RecomputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairwatch_recompute_duration_seconds",
			Help:    "Full recompute cycle latency (query to publish)",
			Buckets: prometheus.DefBuckets,
		}),
		JoinedSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pairwatch_joined_samples",
			Help: "Post-join sample size of the latest signal computation",
		}),
		SnapshotPublish: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairwatch_snapshot_publish_total",
			Help: "Snapshot publishes to Redis",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.DecodeErrors,
		m.WSReconnects,
		m.DroppedWrites,
		m.AlertsTotal,
		m.RecomputeDur,
		m.JoinedSamples,
		m.SnapshotPublish,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	IngestState    string    `json:"ingest_state"`
	LastTickTime   time.Time `json:"last_tick_time"`
	LastCycleTime  time.Time `json:"last_cycle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetIngestState(s string) {
	h.mu.Lock()
	h.IngestState = s
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycleTime(t time.Time) {
	h.mu.Lock()
	h.LastCycleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if h.IngestState != "streaming" {
		overallStatus = "degraded"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		IngestState     string  `json:"ingest_state"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		LastCycleTime   string  `json:"last_cycle_time"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		IngestState:     h.IngestState,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		LastCycleTime:   h.LastCycleTime.Format(time.RFC3339),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
