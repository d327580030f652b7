package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/devrev/pairdb/router/internal/client"
	"github.com/devrev/pairdb/router/internal/metrics"
	"github.com/devrev/pairdb/router/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// MockShardConn is a mock implementation of client.ShardConn
type MockShardConn struct {
	mock.Mock
}

func (m *MockShardConn) Confirm(ctx context.Context, dbName string, options *structpb.Struct) (*structpb.Struct, error) {
	args := m.Called(ctx, dbName, options)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*structpb.Struct), args.Error(1)
}

func (m *MockShardConn) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockShardConn) Release() {
	m.Called()
}

// MockShardConnector is a mock implementation of client.ShardConnector
type MockShardConnector struct {
	mock.Mock
}

func (m *MockShardConnector) Acquire(ctx context.Context, shardAddr string) (client.ShardConn, error) {
	args := m.Called(ctx, shardAddr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(client.ShardConn), args.Error(1)
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func okResponse() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok": structpb.NewBoolValue(true),
	}}
}

func failResponse(errmsg string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":     structpb.NewBoolValue(false),
		"errmsg": structpb.NewStringValue(errmsg),
	}}
}

// sessionWithPrevPositions builds a session whose previous request recorded
// the given positions.
func sessionWithPrevPositions(positions map[string]model.OpPosition) *model.Session {
	sess := model.NewSession("10.0.0.1:5000")
	sess.BeginRequest()
	sess.RecordShardOpPositions(positions)
	sess.BeginRequest()
	return sess
}

func TestDurabilityService_NothingToConfirm(t *testing.T) {
	mockConnector := new(MockShardConnector)
	service := NewDurabilityService(mockConnector, newTestMetrics(), zap.NewNop())

	sess := model.NewSession("10.0.0.1:5000")
	sess.BeginRequest()

	ok, errMsg := service.Confirm(context.Background(), sess, "appdb", map[string]interface{}{"w": "majority"})

	assert.True(t, ok)
	assert.Empty(t, errMsg)
	mockConnector.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything)
}

func TestDurabilityService_AllShardsConfirm(t *testing.T) {
	mockConnector := new(MockShardConnector)
	connA := new(MockShardConn)
	connB := new(MockShardConn)

	connA.On("Confirm", mock.Anything, "appdb", mock.Anything).Return(okResponse(), nil)
	connA.On("Release").Return()
	connB.On("Confirm", mock.Anything, "appdb", mock.Anything).Return(okResponse(), nil)
	connB.On("Release").Return()

	mockConnector.On("Acquire", mock.Anything, "shard-a:50052").Return(connA, nil)
	mockConnector.On("Acquire", mock.Anything, "shard-b:50052").Return(connB, nil)

	service := NewDurabilityService(mockConnector, newTestMetrics(), zap.NewNop())

	sess := sessionWithPrevPositions(map[string]model.OpPosition{
		"shard-a:50052": {Segment: 1, Offset: 10},
		"shard-b:50052": {Segment: 2, Offset: 20},
	})

	ok, errMsg := service.Confirm(context.Background(), sess, "appdb", map[string]interface{}{"w": "majority"})

	assert.True(t, ok)
	assert.Empty(t, errMsg)
	connA.AssertCalled(t, "Release")
	connB.AssertCalled(t, "Release")
}

func TestDurabilityService_FailFastOnMiddleShard(t *testing.T) {
	mockConnector := new(MockShardConnector)
	connA := new(MockShardConn)
	connB := new(MockShardConn)

	connA.On("Confirm", mock.Anything, "appdb", mock.Anything).Return(okResponse(), nil)
	connA.On("Release").Return()
	connB.On("Confirm", mock.Anything, "appdb", mock.Anything).Return(nil, errors.New("connection reset"))
	connB.On("Release").Return()

	mockConnector.On("Acquire", mock.Anything, "shard-a:50052").Return(connA, nil)
	mockConnector.On("Acquire", mock.Anything, "shard-b:50052").Return(connB, nil)

	service := NewDurabilityService(mockConnector, newTestMetrics(), zap.NewNop())

	sess := sessionWithPrevPositions(map[string]model.OpPosition{
		"shard-a:50052": {Segment: 1, Offset: 10},
		"shard-b:50052": {Segment: 2, Offset: 20},
		"shard-c:50052": {Segment: 3, Offset: 30},
	})

	ok, errMsg := service.Confirm(context.Background(), sess, "appdb", map[string]interface{}{"w": "majority"})

	require.False(t, ok)
	assert.Contains(t, errMsg, "shard-b:50052")
	assert.Contains(t, errMsg, "connection reset")

	// Fail-fast: shard-c is never contacted.
	mockConnector.AssertNotCalled(t, "Acquire", mock.Anything, "shard-c:50052")

	// The failing shard's lease is still released.
	connA.AssertCalled(t, "Release")
	connB.AssertCalled(t, "Release")
}

func TestDurabilityService_AcquireFailureIsShardFailure(t *testing.T) {
	mockConnector := new(MockShardConnector)
	mockConnector.On("Acquire", mock.Anything, "shard-a:50052").Return(nil, errors.New("dial timeout"))

	service := NewDurabilityService(mockConnector, newTestMetrics(), zap.NewNop())

	sess := sessionWithPrevPositions(map[string]model.OpPosition{
		"shard-a:50052": {Segment: 1, Offset: 10},
	})

	ok, errMsg := service.Confirm(context.Background(), sess, "appdb", map[string]interface{}{"w": "majority"})

	require.False(t, ok)
	assert.Contains(t, errMsg, "shard-a:50052")
	assert.Contains(t, errMsg, "dial timeout")
}

func TestDurabilityService_ShardReportsFailure(t *testing.T) {
	mockConnector := new(MockShardConnector)
	conn := new(MockShardConn)

	conn.On("Confirm", mock.Anything, "appdb", mock.Anything).Return(failResponse("waiting for replication timed out"), nil)
	conn.On("Release").Return()

	mockConnector.On("Acquire", mock.Anything, "shard-a:50052").Return(conn, nil)

	service := NewDurabilityService(mockConnector, newTestMetrics(), zap.NewNop())

	sess := sessionWithPrevPositions(map[string]model.OpPosition{
		"shard-a:50052": {Segment: 1, Offset: 10},
	})

	ok, errMsg := service.Confirm(context.Background(), sess, "appdb", map[string]interface{}{"w": "majority"})

	require.False(t, ok)
	assert.Contains(t, errMsg, "shard-a:50052")
	assert.Contains(t, errMsg, "waiting for replication timed out")
	conn.AssertCalled(t, "Release")
}

func TestDurabilityService_NumericOKIsSuccess(t *testing.T) {
	mockConnector := new(MockShardConnector)
	conn := new(MockShardConn)

	resp := &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok": structpb.NewNumberValue(1),
	}}
	conn.On("Confirm", mock.Anything, "appdb", mock.Anything).Return(resp, nil)
	conn.On("Release").Return()

	mockConnector.On("Acquire", mock.Anything, "shard-a:50052").Return(conn, nil)

	service := NewDurabilityService(mockConnector, newTestMetrics(), zap.NewNop())

	sess := sessionWithPrevPositions(map[string]model.OpPosition{
		"shard-a:50052": {Segment: 1, Offset: 10},
	})

	ok, _ := service.Confirm(context.Background(), sess, "appdb", map[string]interface{}{"w": "majority"})
	assert.True(t, ok)
}

func TestDurabilityService_AddsOpPositionToOptions(t *testing.T) {
	mockConnector := new(MockShardConnector)
	conn := new(MockShardConn)

	pos := model.OpPosition{Segment: 9, Offset: 4096}
	expectedOpTime := strconv.FormatUint(pos.Packed(), 10)

	conn.On("Confirm", mock.Anything, "appdb", mock.MatchedBy(func(options *structpb.Struct) bool {
		w, hasW := options.Fields["w"]
		opTime, hasOpTime := options.Fields["wOpTime"]
		return hasW && w.GetStringValue() == "majority" &&
			hasOpTime && opTime.GetStringValue() == expectedOpTime
	})).Return(okResponse(), nil)
	conn.On("Release").Return()

	mockConnector.On("Acquire", mock.Anything, "shard-a:50052").Return(conn, nil)

	service := NewDurabilityService(mockConnector, newTestMetrics(), zap.NewNop())

	sess := sessionWithPrevPositions(map[string]model.OpPosition{"shard-a:50052": pos})

	ok, errMsg := service.Confirm(context.Background(), sess, "appdb", map[string]interface{}{"w": "majority"})

	require.True(t, ok, errMsg)
	conn.AssertExpectations(t)
}
