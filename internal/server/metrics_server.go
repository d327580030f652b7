package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/devrev/pairdb/router/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessSource reports whether the router's downstream shards are
// reachable, plus per-shard detail for the readiness payload.
type ReadinessSource interface {
	Ready() bool
	Statuses() map[string]string
	ReachableCount() int
}

// MetricsServer serves Prometheus metrics via HTTP
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	readiness  ReadinessSource
	sessions   func() int
	leases     func() int64
	logger     *zap.Logger
	stopChan   chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port int
	Path string
}

// NewMetricsServer creates a new metrics server
func NewMetricsServer(
	cfg *MetricsServerConfig,
	m *metrics.Metrics,
	readiness ReadinessSource,
	sessions func() int,
	leases func() int64,
	logger *zap.Logger,
) *MetricsServer {
	mux := http.NewServeMux()

	ms := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics:   m,
		readiness: readiness,
		sessions:  sessions,
		leases:    leases,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}

	// Register Prometheus metrics handler
	mux.Handle(cfg.Path, promhttp.Handler())

	// Register health check endpoint
	mux.HandleFunc("/health", ms.healthHandler)

	// Register readiness endpoint
	mux.HandleFunc("/ready", ms.readyHandler)

	return ms
}

// Start starts the metrics server
func (s *MetricsServer) Start() error {
	s.logger.Info("Starting metrics server", zap.String("addr", s.httpServer.Addr))

	// Start system metrics collector
	go s.collectSystemMetrics()

	// Start HTTP server
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")

	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	return nil
}

// healthHandler handles health check requests
func (s *MetricsServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// readyHandler handles readiness check requests
func (s *MetricsServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Sessions  int               `json:"sessions"`
		Shards    map[string]string `json:"shards,omitempty"`
	}{
		Timestamp: time.Now().Unix(),
		Sessions:  s.sessions(),
		Shards:    s.readiness.Statuses(),
	}

	w.Header().Set("Content-Type", "application/json")

	if s.readiness.Ready() {
		payload.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		payload.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(payload)
}

// collectSystemMetrics periodically collects system-level metrics
func (s *MetricsServer) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateSystemMetrics()
		case <-s.stopChan:
			return
		}
	}
}

// updateSystemMetrics updates system-level metrics
func (s *MetricsServer) updateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.metrics.UpdateSystemStats(int64(memStats.Alloc), runtime.NumGoroutine())
	s.metrics.SessionsActive.Set(float64(s.sessions()))
	s.metrics.ShardLeasesInUse.Set(float64(s.leases()))
	s.metrics.ShardsReachable.Set(float64(s.readiness.ReachableCount()))
}
