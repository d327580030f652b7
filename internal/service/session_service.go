package service

import (
	"context"

	"github.com/devrev/pairdb/router/internal/metrics"
	"github.com/devrev/pairdb/router/internal/model"
	"github.com/devrev/pairdb/router/internal/store"
	"go.uber.org/zap"
)

// SessionService is the request-lifecycle facade the command dispatch layer
// drives: it resolves the connection's session at each request boundary,
// records write results into it, and runs post-write durability
// confirmation against it.
type SessionService struct {
	sessions   store.SessionStore
	durability *DurabilityService
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewSessionService creates a new session service
func NewSessionService(
	sessions store.SessionStore,
	durability *DurabilityService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:   sessions,
		durability: durability,
		metrics:    m,
		logger:     logger,
	}
}

// BeginRequest resolves (or creates) the connection's session and performs
// the request-boundary transition. peer may be empty for requests not
// associated with a client peer.
func (s *SessionService) BeginRequest(connID, peer string) (*model.Session, error) {
	created := !s.sessions.Exists(connID)

	sess := s.sessions.GetOrCreate(connID, "")
	if created {
		s.metrics.SessionsCreated.Inc()
		s.metrics.SessionsActive.Set(float64(s.sessions.Len()))
	}

	if peer == "" {
		sess.BeginRequest()
	} else if err := sess.BeginPeerRequest(peer); err != nil {
		s.metrics.PeerMismatches.Inc()
		return nil, err
	}

	s.metrics.RequestsTotal.WithLabelValues("begin_request").Inc()
	return sess, nil
}

// RecordWriteResult records which shards a completed write touched and the
// commit-log positions it was acknowledged at.
func (s *SessionService) RecordWriteResult(connID string, shards []string, positions map[string]model.OpPosition) error {
	sess, err := s.sessions.Get(connID)
	if err != nil {
		return err
	}

	for _, shardID := range shards {
		sess.RecordShardWrite(shardID)
	}
	sess.RecordShardOpPositions(positions)

	return nil
}

// ConfirmWriteConcern runs durability confirmation for the connection's
// previous request. On a fully successful round the session's
// since-last-confirmation shard set is reset. The error return covers only
// an unknown connection; shard-level failures surface through ok/errMsg.
func (s *SessionService) ConfirmWriteConcern(
	ctx context.Context,
	connID, dbName string,
	options map[string]interface{},
) (bool, string, error) {
	sess, err := s.sessions.Get(connID)
	if err != nil {
		return false, "", err
	}

	ok, errMsg := s.durability.Confirm(ctx, sess, dbName, options)
	if ok {
		sess.ResetSinceLastConfirmation()
	}

	return ok, errMsg, nil
}

// Disconnect tears down the connection's session. Unknown connections are
// ignored: the transport may report teardown for connections that never
// issued a request.
func (s *SessionService) Disconnect(connID string) {
	sess, err := s.sessions.Get(connID)
	if err != nil {
		return
	}

	sess.Disconnect()
	s.sessions.Remove(connID)
	s.metrics.SessionsActive.Set(float64(s.sessions.Len()))

	s.logger.Debug("Connection disconnected", zap.String("conn_id", connID))
}

// SessionCount returns the number of live sessions
func (s *SessionService) SessionCount() int {
	return s.sessions.Len()
}
