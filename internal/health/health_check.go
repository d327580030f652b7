package health

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/pairdb/router/internal/client"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShardMonitor periodically probes every configured shard address and
// tracks which ones are reachable. Each probe leases a connection and
// issues a health-check round trip on it; connection establishment is lazy,
// so acquiring the lease alone would report any address as healthy.
type ShardMonitor struct {
	connector client.ShardConnector
	shards    []string
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.RWMutex
	statuses map[string]string
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewShardMonitor creates a new shard monitor
func NewShardMonitor(
	connector client.ShardConnector,
	shards []string,
	interval, timeout time.Duration,
	logger *zap.Logger,
) *ShardMonitor {
	return &ShardMonitor{
		connector: connector,
		shards:    shards,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		statuses:  make(map[string]string),
		stopChan:  make(chan struct{}),
	}
}

// Start begins periodic probing
func (m *ShardMonitor) Start() {
	go m.run()
}

// Stop halts probing
func (m *ShardMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *ShardMonitor) run() {
	// Probe once up front so readiness reflects reality before the first tick
	m.probeAll()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probeAll()
		case <-m.stopChan:
			return
		}
	}
}

// probeAll probes every shard concurrently
func (m *ShardMonitor) probeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	results := make(map[string]string, len(m.shards))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for _, addr := range m.shards {
		addr := addr
		g.Go(func() error {
			status := "healthy"
			if err := m.probe(gctx, addr); err != nil {
				m.logger.Warn("Shard probe failed",
					zap.String("shard", addr),
					zap.Error(err))
				status = "unhealthy: " + err.Error()
			}

			mu.Lock()
			results[addr] = status
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	m.mu.Lock()
	m.statuses = results
	m.mu.Unlock()
}

func (m *ShardMonitor) probe(ctx context.Context, addr string) error {
	conn, err := m.connector.Acquire(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Release()

	return conn.Ping(ctx)
}

// Ready reports whether every configured shard is reachable
func (m *ShardMonitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.statuses) < len(m.shards) {
		return false
	}
	for _, status := range m.statuses {
		if status != "healthy" {
			return false
		}
	}
	return true
}

// Statuses returns a copy of the per-shard status map
func (m *ShardMonitor) Statuses() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.statuses))
	for addr, status := range m.statuses {
		out[addr] = status
	}
	return out
}

// ReachableCount returns the number of currently reachable shards
func (m *ShardMonitor) ReachableCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, status := range m.statuses {
		if status == "healthy" {
			count++
		}
	}
	return count
}
