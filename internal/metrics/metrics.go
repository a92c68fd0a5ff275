// Package metrics exposes Prometheus metrics and a health endpoint for the
// order lifecycle core.
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

// Metrics holds all Prometheus metrics for the trading core.
type Metrics struct {
	OrdersCreated   *prometheus.CounterVec // labels: type
	OrdersRejected  *prometheus.CounterVec // labels: reason
	OrdersCancelled prometheus.Counter
	FillsApplied    prometheus.Counter
	EventsPublished prometheus.Counter
	RiskBreaches    *prometheus.CounterVec // labels: check
	VenueSubmitDur  prometheus.Histogram
	MarksApplied    prometheus.Counter
	FeedReconnects  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_orders_created_total",
			Help: "Orders accepted into the lifecycle (by order type)",
		}, []string{"type"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_orders_rejected_total",
			Help: "Order creations rejected before or at the venue (by reason)",
		}, []string{"reason"}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradingcore_orders_cancelled_total",
			Help: "Orders cancelled through the coordinator",
		}),
		FillsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradingcore_fills_applied_total",
			Help: "Fill notifications applied to orders",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradingcore_events_published_total",
			Help: "Domain events dispatched to the event sink",
		}),
		RiskBreaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_risk_breaches_total",
			Help: "Advisory post-trade risk breaches (by check)",
		}, []string{"check"}),
		VenueSubmitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradingcore_venue_submit_duration_seconds",
			Help:    "Execution venue submit latency",
			Buckets: prometheus.DefBuckets,
		}),
		MarksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradingcore_marks_applied_total",
			Help: "Mark price batches applied to the portfolio",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradingcore_feed_reconnects_total",
			Help: "Mark price feed reconnection attempts",
		}),
	}

	prometheus.MustRegister(
		m.OrdersCreated,
		m.OrdersRejected,
		m.OrdersCancelled,
		m.FillsApplied,
		m.EventsPublished,
		m.RiskBreaches,
		m.VenueSubmitDur,
		m.MarksApplied,
		m.FeedReconnects,
	)

	return m
}

// HealthStatus represents the wiring's dependency health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastFillAt     time.Time `json:"last_fill_at"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastFillAt(t time.Time) {
	h.mu.Lock()
	h.LastFillAt = t
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

// CheckSQLite pings the order store and records latency + health.
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
	if !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastFillAt      string  `json:"last_fill_at"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastFillAt:      h.LastFillAt.Format(time.RFC3339),
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
