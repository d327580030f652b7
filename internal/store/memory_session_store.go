package store

import (
	"sync"

	routererrors "github.com/devrev/pairdb/router/internal/errors"
	"github.com/devrev/pairdb/router/internal/model"
	"go.uber.org/zap"
)

// InMemorySessionStore implements SessionStore using an in-memory map.
// The store itself is shared mutable state and serializes create, lookup
// and remove; the sessions it hands out are single-owner and unlocked.
type InMemorySessionStore struct {
	sessions map[string]*model.Session
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewInMemorySessionStore creates a new in-memory session store
func NewInMemorySessionStore(logger *zap.Logger) *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]*model.Session),
		logger:   logger,
	}
}

// Create allocates a session for the connection. Panics with a
// DuplicateSession error if one already exists.
func (s *InMemorySessionStore) Create(connID, remote string) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(connID, remote)
}

func (s *InMemorySessionStore) createLocked(connID, remote string) *model.Session {
	if _, exists := s.sessions[connID]; exists {
		panic(routererrors.DuplicateSession(connID))
	}

	sess := model.NewSession(remote)
	// Start with a clean current buffer
	sess.BeginRequest()
	s.sessions[connID] = sess

	s.logger.Debug("Session created",
		zap.String("conn_id", connID),
		zap.String("remote", remote),
		zap.Int("live_sessions", len(s.sessions)))

	return sess
}

// GetOrCreate returns the connection's session, creating one if absent
func (s *InMemorySessionStore) GetOrCreate(connID, observedPeer string) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[connID]
	if !exists {
		return s.createLocked(connID, observedPeer)
	}

	// An explicit peer asserted against an existing session must agree with
	// the bound one; the transport owns the invariant, so disagreement is
	// fatal rather than a request-level failure.
	if observedPeer != "" && sess.Remote() != "" && sess.Remote() != observedPeer {
		panic(routererrors.PeerMismatch(sess.Remote(), observedPeer))
	}

	return sess
}

// Get returns the connection's session or a SessionNotFound error
func (s *InMemorySessionStore) Get(connID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[connID]
	if !exists {
		return nil, routererrors.SessionNotFound(connID)
	}
	return sess, nil
}

// Exists reports whether a session exists for the connection
func (s *InMemorySessionStore) Exists(connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.sessions[connID]
	return exists
}

// Remove releases the connection's session. Removal is eager: there is no
// ambient per-goroutine storage to defer reclamation to, so teardown drops
// the entry immediately.
func (s *InMemorySessionStore) Remove(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[connID]; !exists {
		return
	}

	delete(s.sessions, connID)

	s.logger.Debug("Session removed",
		zap.String("conn_id", connID),
		zap.Int("live_sessions", len(s.sessions)))
}

// Len returns the number of live sessions
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
