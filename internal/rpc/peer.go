package rpc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lapdev/wsagent/internal/activity"
)

// Peer is one live Conductor connection: a locally generated id plus the
// reverse client riding the same transport.
type Peer struct {
	ID        uuid.UUID
	Conductor *ConductorClient
}

// Registry tracks live peers in connection order. Insert on connect,
// remove on disconnect; removal is O(n) by peer id, fine at the expected
// handful of Conductors.
type Registry struct {
	mu    sync.RWMutex
	peers []*Peer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a peer.
func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, p)
}

// Remove unregisters a peer by id. Safe to call more than once.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.peers[:0]
	for _, p := range r.peers {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	r.peers = kept
}

// First returns the earliest-registered peer.
func (r *Registry) First() (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.peers) == 0 {
		return nil, false
	}
	return r.peers[0], true
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// FirstConductor implements activity.Peers.
func (r *Registry) FirstConductor() (activity.Conductor, bool) {
	p, ok := r.First()
	if !ok {
		return nil, false
	}
	return p.Conductor, true
}
