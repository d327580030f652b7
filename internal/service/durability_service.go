package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/devrev/pairdb/router/internal/client"
	routererrors "github.com/devrev/pairdb/router/internal/errors"
	"github.com/devrev/pairdb/router/internal/metrics"
	"github.com/devrev/pairdb/router/internal/model"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// DurabilityService enforces a client-requested write concern: after a
// request completes, it asks every shard the previous request wrote to
// whether the shard has durably applied operations up to the recorded
// commit-log position.
type DurabilityService struct {
	connector client.ShardConnector
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewDurabilityService creates a new durability service
func NewDurabilityService(connector client.ShardConnector, m *metrics.Metrics, logger *zap.Logger) *DurabilityService {
	return &DurabilityService{
		connector: connector,
		metrics:   m,
		logger:    logger,
	}
}

// Confirm checks the write concern described by options against every shard
// recorded in the session's previous request. Shards are contacted one at a
// time in shard-ID order; the first failure aborts the round and the
// remaining shards are not contacted. Shard-level failures are reported via
// the ok/errMsg result, never as an error crossing this boundary.
func (s *DurabilityService) Confirm(
	ctx context.Context,
	sess *model.Session,
	dbName string,
	options map[string]interface{},
) (bool, string) {
	positions := sess.PrevOpPositions()
	if len(positions) == 0 {
		return true, ""
	}

	start := time.Now()

	shards := make([]string, 0, len(positions))
	for shardID := range positions {
		shards = append(shards, shardID)
	}
	sort.Strings(shards)

	for _, shardID := range shards {
		pos := positions[shardID]

		s.logger.Debug("Enforcing write concern",
			zap.String("db", dbName),
			zap.String("shard", shardID),
			zap.String("op_position", pos.String()))

		if err := s.confirmShard(ctx, shardID, dbName, options, pos); err != nil {
			failure := routererrors.ConfirmationFailed(shardID, err)

			s.logger.Warn("Write concern enforcement failed",
				zap.String("db", dbName),
				zap.String("shard", shardID),
				zap.Error(failure))

			s.metrics.ShardConfirmFailures.WithLabelValues(shardID).Inc()
			s.metrics.ConfirmationsTotal.WithLabelValues("failed").Inc()
			s.metrics.ConfirmationDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())

			return false, failure.Error()
		}
	}

	s.metrics.ConfirmationsTotal.WithLabelValues("ok").Inc()
	s.metrics.ConfirmationDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	return true, ""
}

// confirmShard runs one confirmation RPC against one shard. The leased
// connection is released on every path.
func (s *DurabilityService) confirmShard(
	ctx context.Context,
	shardID, dbName string,
	options map[string]interface{},
	pos model.OpPosition,
) error {
	reqOptions, err := optionsWithOpPosition(options, pos)
	if err != nil {
		return err
	}

	conn, err := s.connector.Acquire(ctx, shardID)
	if err != nil {
		return routererrors.ShardUnreachable(shardID, err)
	}
	defer conn.Release()

	resp, err := conn.Confirm(ctx, dbName, reqOptions)
	if err != nil {
		return err
	}

	if !responseOK(resp) {
		return fmt.Errorf("shard reported failure: %s", responseErrMsg(resp))
	}

	return nil
}

// optionsWithOpPosition copies the caller-supplied options document and adds
// the wOpTime field carrying the shard's recorded position. The packed
// position travels as a decimal string: Struct numbers are float64 and would
// truncate the high segment bits.
func optionsWithOpPosition(options map[string]interface{}, pos model.OpPosition) (*structpb.Struct, error) {
	base, err := structpb.NewStruct(options)
	if err != nil {
		return nil, routererrors.InvalidArgument("write concern options are not representable", err)
	}

	base.Fields["wOpTime"] = structpb.NewStringValue(strconv.FormatUint(pos.Packed(), 10))
	return base, nil
}

// responseOK interprets the shard's response document: a confirmation
// succeeded iff it carries a truthy "ok" field.
func responseOK(resp *structpb.Struct) bool {
	v, exists := resp.Fields["ok"]
	if !exists {
		return false
	}

	switch kind := v.Kind.(type) {
	case *structpb.Value_BoolValue:
		return kind.BoolValue
	case *structpb.Value_NumberValue:
		return kind.NumberValue != 0
	default:
		return false
	}
}

func responseErrMsg(resp *structpb.Struct) string {
	if v, exists := resp.Fields["errmsg"]; exists {
		return v.GetStringValue()
	}
	return resp.String()
}
