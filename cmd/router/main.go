package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/pairdb/router/internal/client"
	"github.com/devrev/pairdb/router/internal/config"
	"github.com/devrev/pairdb/router/internal/health"
	"github.com/devrev/pairdb/router/internal/metrics"
	"github.com/devrev/pairdb/router/internal/server"
	"github.com/devrev/pairdb/router/internal/service"
	"github.com/devrev/pairdb/router/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Shard transport
	shardClient := client.NewGRPCShardClient(cfg.Transport.CallTimeout)
	defer shardClient.Close()

	// Session tracking and write concern enforcement
	sessions := store.NewInMemorySessionStore(logger)
	durabilitySvc := service.NewDurabilityService(shardClient, m, logger)
	sessionSvc := service.NewSessionService(sessions, durabilitySvc, m, logger)

	// Shard health monitoring
	monitor := health.NewShardMonitor(
		shardClient,
		cfg.Health.Shards,
		cfg.Health.ProbeInterval,
		cfg.Health.ProbeTimeout,
		logger,
	)
	if cfg.Health.Enabled {
		monitor.Start()
		defer monitor.Stop()
	}

	// Metrics server
	if cfg.Metrics.Enabled {
		metricsServer := server.NewMetricsServer(
			&server.MetricsServerConfig{Port: cfg.Metrics.Port, Path: cfg.Metrics.Path},
			m,
			monitor,
			sessionSvc.SessionCount,
			shardClient.LeasesInUse,
			logger,
		)
		if err := metricsServer.Start(); err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
		defer metricsServer.Stop()
	}

	logger.Info("Router session tier ready",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("configured_shards", len(cfg.Health.Shards)))

	// The client-facing wire protocol front-end attaches to sessionSvc; this
	// process runs the session/durability core plus its operational shell.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
}

// initLogger initializes the zap logger from logging configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
