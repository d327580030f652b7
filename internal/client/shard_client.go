package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// confirmMethod is the full gRPC method name of the durability confirmation
// handler served by every storage shard.
const confirmMethod = "/pairdb.router.Durability/Confirm"

// ShardConn is a connection leased to the caller for the duration of one
// RPC. Release must be called on every exit path; it is idempotent.
type ShardConn interface {
	// Confirm sends a durability confirmation request against dbName. The
	// options document is caller-defined, so it travels as a schemaless
	// struct rather than a fixed message type.
	Confirm(ctx context.Context, dbName string, options *structpb.Struct) (*structpb.Struct, error)
	// Ping verifies the shard is reachable and serving. Connection
	// establishment is lazy, so acquiring a lease alone proves nothing
	// about the shard; Ping forces a round trip.
	Ping(ctx context.Context) error
	Release()
}

// ShardConnector hands out leased connections to shards by address
type ShardConnector interface {
	Acquire(ctx context.Context, shardAddr string) (ShardConn, error)
}

// GRPCShardClient implements ShardConnector over gRPC, caching one
// underlying connection per shard address.
type GRPCShardClient struct {
	connections map[string]*grpc.ClientConn
	mu          sync.RWMutex
	callTimeout time.Duration

	leasesInUse int64
}

// NewGRPCShardClient creates a new shard client
func NewGRPCShardClient(callTimeout time.Duration) *GRPCShardClient {
	return &GRPCShardClient{
		connections: make(map[string]*grpc.ClientConn),
		callTimeout: callTimeout,
	}
}

// Acquire leases a connection to the shard at addr
func (c *GRPCShardClient) Acquire(ctx context.Context, addr string) (ShardConn, error) {
	conn, err := c.getConnection(addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.leasesInUse++
	c.mu.Unlock()

	return &shardLease{client: c, conn: conn, addr: addr}, nil
}

// LeasesInUse returns the number of leases currently outstanding
func (c *GRPCShardClient) LeasesInUse() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.leasesInUse
}

// getConnection returns or creates a gRPC connection. The connection
// connects lazily on first use; transport failures surface on the RPCs
// issued through it.
func (c *GRPCShardClient) getConnection(addr string) (*grpc.ClientConn, error) {
	c.mu.RLock()
	conn, exists := c.connections[addr]
	c.mu.RUnlock()

	if exists {
		return conn, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check
	if conn, exists := c.connections[addr]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection to %s: %w", addr, err)
	}

	c.connections[addr] = conn
	return conn, nil
}

// Close closes all connections
func (c *GRPCShardClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conn := range c.connections {
		conn.Close()
	}
	c.connections = make(map[string]*grpc.ClientConn)
}

// CloseConnection closes the cached connection for a specific shard address
func (c *GRPCShardClient) CloseConnection(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, exists := c.connections[addr]; exists {
		delete(c.connections, addr)
		return conn.Close()
	}

	return nil
}

// shardLease is one borrowed connection. The underlying grpc connection is
// shared and multiplexed; the lease exists to make the borrow/return
// discipline explicit and observable.
type shardLease struct {
	client   *GRPCShardClient
	conn     *grpc.ClientConn
	addr     string
	released bool
}

func (l *shardLease) Confirm(ctx context.Context, dbName string, options *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, l.client.callTimeout)
	defer cancel()

	req := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"db":      structpb.NewStringValue(dbName),
			"options": structpb.NewStructValue(options),
		},
	}

	resp := &structpb.Struct{}
	if err := l.conn.Invoke(ctx, confirmMethod, req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// Ping issues a standard health check against the shard
func (l *shardLease) Ping(ctx context.Context) error {
	resp, err := grpc_health_v1.NewHealthClient(l.conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("shard %s is not serving: %s", l.addr, resp.Status)
	}
	return nil
}

func (l *shardLease) Release() {
	if l.released {
		return
	}
	l.released = true

	l.client.mu.Lock()
	l.client.leasesInUse--
	l.client.mu.Unlock()
}
