package store

import (
	"github.com/devrev/pairdb/router/internal/model"
)

// SessionStore maps a connection identity to its session. At most one
// session exists per connection; it is created when the connection's first
// request arrives and removed when the connection closes.
type SessionStore interface {
	// Create allocates a new session for the connection and performs its
	// initial request-boundary transition. Panics if a session already
	// exists for the connection: double registration is a lifecycle bug in
	// the caller, not a runtime condition to recover from.
	Create(connID, remote string) *model.Session
	// GetOrCreate returns the connection's session, creating one bound to
	// observedPeer if absent. observedPeer may be empty to look up without
	// asserting a peer; a non-empty observedPeer that disagrees with an
	// existing session's bound peer is a caller contract violation and
	// panics.
	GetOrCreate(connID, observedPeer string) *model.Session
	// Get returns the connection's session or a SessionNotFound error.
	Get(connID string) (*model.Session, error)
	// Exists reports whether a session exists for the connection, with no
	// side effect.
	Exists(connID string) bool
	// Remove releases the connection's session on teardown.
	Remove(connID string)
	// Len returns the number of live sessions.
	Len() int
}
