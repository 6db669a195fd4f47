// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Peer is an immutable-after-handshake record of a registered connection.
// Every field except the outbound queue is fixed at registration time;
// Outbox is the only mutable path to the peer.
type Peer struct {
	ConnID        string
	ConnectParams ConnectParams
	Role          string
	Scopes        []string
	ConnectedAt   time.Time

	// Conn is the underlying transport. Closing it is the only supported
	// way to force a peer's teardown from outside its own read loop: it
	// unblocks that loop's blocking Read, which then drives the single,
	// ordinary teardown path in HandleConnection. Nothing else may close
	// Outbox or Conn directly.
	Conn *websocket.Conn

	// Outbox is the peer's outbound queue: serialized frames waiting to
	// be written to the wire by that peer's write goroutine. Bounded;
	// a full queue means the peer is too slow and should be dropped.
	Outbox chan string
}

// HasScope reports whether the peer carries scope, or the admin scope
// (which implies every other scope).
func (p *Peer) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == ScopeAdmin || s == scope {
			return true
		}
	}
	return false
}

// Send enqueues an already-serialized frame on the peer's outbound queue.
// Returns false if the queue is full (caller should treat this as a
// disconnected peer) or already closed.
func (p *Peer) Send(frame string) (ok bool) {
	defer func() {
		// Outbox may have been closed by teardown racing with a
		// broadcaster; recover rather than propagate a panic.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case p.Outbox <- frame:
		return true
	default:
		return false
	}
}

// Registry is the connection registry (component C): a concurrency-safe
// map of conn_id to Peer. Mutation (Register/Remove) takes a write lock;
// Count and Snapshot take a read lock.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Register adds peer to the registry. Panics if peer.ConnID already
// exists: the id generator is globally unique per process, so a collision
// indicates a bug in the caller, not a condition to handle gracefully.
func (r *Registry) Register(peer *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.peers[peer.ConnID]; exists {
		panic("gateway: duplicate conn_id registered: " + peer.ConnID)
	}
	r.peers[peer.ConnID] = peer
}

// Remove deletes connID from the registry and returns the removed peer,
// or nil if it was not present.
func (r *Registry) Remove(connID string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[connID]
	if !ok {
		return nil
	}
	delete(r.peers, connID)
	return peer
}

// Count returns the number of currently registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns an iteration-safe slice of every registered peer at
// the moment of the call. Safe to range over without holding any lock.
func (r *Registry) Snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Get looks up a single peer by conn_id.
func (r *Registry) Get(connID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[connID]
	return p, ok
}
