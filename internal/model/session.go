package model

import (
	"time"

	routererrors "github.com/devrev/pairdb/router/internal/errors"
)

// RequestState accumulates the shard bookkeeping for one request window.
// The two sets are fed by different call paths and are deliberately not
// reconciled with each other: durability confirmation consults only
// opPositionByShard, so a shard recorded only via RecordShardWrite is never
// confirmed.
type RequestState struct {
	shardsWritten     map[string]struct{}
	opPositionByShard map[string]OpPosition
}

func newRequestState() RequestState {
	return RequestState{
		shardsWritten:     make(map[string]struct{}),
		opPositionByShard: make(map[string]OpPosition),
	}
}

// clear empties both sets in place so the maps survive buffer rotation
func (r *RequestState) clear() {
	clear(r.shardsWritten)
	clear(r.opPositionByShard)
}

// Session is the per-connection request tracker. Exactly one exists per
// client connection, owned by whichever goroutine is handling that
// connection's in-flight request; it is never shared across connections and
// carries no internal locking.
//
// Two RequestState buffers are held in a fixed array with an index selecting
// which one is current; request-boundary transitions flip the index instead
// of swapping pointers, so current and previous are always the two distinct
// owned buffers.
type Session struct {
	remote  string
	buffers [2]RequestState
	cur     int

	sinceLastConfirmation map[string]struct{}
	lastActive            time.Time
	autoSplitOK           bool
}

// NewSession creates a session bound to the given remote peer identity.
// remote may be empty; the first BeginPeerRequest establishes it.
func NewSession(remote string) *Session {
	return &Session{
		remote:                remote,
		buffers:               [2]RequestState{newRequestState(), newRequestState()},
		sinceLastConfirmation: make(map[string]struct{}),
		autoSplitOK:           true,
	}
}

func (s *Session) current() *RequestState  { return &s.buffers[s.cur] }
func (s *Session) previous() *RequestState { return &s.buffers[1-s.cur] }

// BeginRequest marks a request boundary: the buffer just filled becomes
// previous, the other buffer becomes current and is cleared. This is the
// only transition that populates the previous buffer, so previous always
// holds exactly the state of the immediately preceding request.
func (s *Session) BeginRequest() {
	s.lastActive = time.Now()
	s.cur = 1 - s.cur
	s.current().clear()
}

// BeginPeerRequest establishes the remote peer identity on first call and
// behaves as BeginRequest. A later call reporting a different peer returns a
// PeerMismatch error without rotating the buffers; the transport guarantees
// one physical peer per connection, so divergence is a transport bug.
func (s *Session) BeginPeerRequest(peer string) error {
	if s.remote == "" {
		s.remote = peer
	} else if s.remote != peer {
		return routererrors.PeerMismatch(s.remote, peer)
	}

	s.BeginRequest()
	return nil
}

// DisableForCommand swaps the current and previous roles without clearing
// either buffer, so a follow-up command issued inside the same request sees
// the previous request's state as current. It is its own inverse; the caller
// is responsible for the restoring call if the original roles are needed
// again.
func (s *Session) DisableForCommand() {
	s.cur = 1 - s.cur
}

// RecordShardWrite notes that the current request wrote to the given shard
func (s *Session) RecordShardWrite(shardID string) {
	s.current().shardsWritten[shardID] = struct{}{}
	s.sinceLastConfirmation[shardID] = struct{}{}
}

// RecordShardOpPositions merges commit-log positions for shards written by
// the current request. Last write wins: an existing entry for a shard is
// overwritten even if the new position is earlier.
func (s *Session) RecordShardOpPositions(positions map[string]OpPosition) {
	for shardID, pos := range positions {
		s.current().opPositionByShard[shardID] = pos
	}
}

// ClearCurrent resets the current buffer, discarding what the in-flight
// request has recorded so far. Used when a request aborts mid-dispatch.
func (s *Session) ClearCurrent() {
	s.current().clear()
}

// CurrentShardsWritten returns the shards written by the in-flight request.
// The returned map is the live set; callers must not retain it across a
// request boundary.
func (s *Session) CurrentShardsWritten() map[string]struct{} {
	return s.current().shardsWritten
}

// PrevShardsWritten returns the shards written by the previous request
func (s *Session) PrevShardsWritten() map[string]struct{} {
	return s.previous().shardsWritten
}

// PrevOpPositions returns the commit-log positions recorded by the previous
// request, keyed by shard
func (s *Session) PrevOpPositions() map[string]OpPosition {
	return s.previous().opPositionByShard
}

// SinceLastConfirmation returns all shards touched since the last reset,
// independent of buffer rotation
func (s *Session) SinceLastConfirmation() map[string]struct{} {
	return s.sinceLastConfirmation
}

// ResetSinceLastConfirmation clears the touched-shard set
func (s *Session) ResetSinceLastConfirmation() {
	clear(s.sinceLastConfirmation)
}

// Remote returns the peer identity this session is bound to
func (s *Session) Remote() string { return s.remote }

// LastActive returns the time of the most recent request boundary
func (s *Session) LastActive() time.Time { return s.lastActive }

// Disconnect marks the session inactive ahead of its removal
func (s *Session) Disconnect() {
	s.lastActive = time.Time{}
}

// AutoSplitOK reports whether range auto-splitting may be triggered on
// behalf of this connection
func (s *Session) AutoSplitOK() bool { return s.autoSplitOK }

// DisableAutoSplit turns auto-splitting off for the rest of the session
func (s *Session) DisableAutoSplit() { s.autoSplitOK = false }
