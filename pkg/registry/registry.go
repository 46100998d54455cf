// Package registry tracks the peers this node knows about, including their
// advertised concepts, capabilities and a bounded trust score.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"weave/pkg/types"
)

// Initial trust assignments.
const (
	// TrustDiscovered is granted to freshly discovered peers.
	TrustDiscovered = 0.5
	// TrustUnverified is the default for explicitly registered peers that
	// have not been contacted yet.
	TrustUnverified = 0.0
)

// Registry is the peer table. Records are upserted whole under the lock;
// reads return copies so callers never alias shared state. Trust is only
// ever mutated through UpdateTrust, keeping its evolution auditable.
type Registry struct {
	mu     sync.RWMutex
	peers  map[types.NodeID]types.FederationNode
	logger *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		peers:  make(map[types.NodeID]types.FederationNode),
		logger: logger,
	}
}

// RegisterOrUpdate upserts a peer record keyed by node id. For an existing
// peer it refreshes everything except trust, which only UpdateTrust may
// touch.
func (r *Registry) RegisterOrUpdate(peer types.FederationNode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.peers[peer.NodeID]; ok {
		peer.TrustScore = existing.TrustScore
	}
	if peer.LastSeen.IsZero() {
		peer.LastSeen = time.Now().UTC()
	}
	r.peers[peer.NodeID] = peer
}

// Get returns a copy of the peer record.
func (r *Registry) Get(id types.NodeID) (types.FederationNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// List returns a snapshot of peers matching the filter. A nil filter
// matches everything.
func (r *Registry) List(filter func(types.FederationNode) bool) []types.FederationNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.FederationNode, 0, len(r.peers))
	for _, p := range r.peers {
		if filter == nil || filter(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// UpdateTrust applies a delta to a peer's trust score, clamped to [0,1].
// Unknown peers are ignored.
func (r *Registry) UpdateTrust(id types.NodeID, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return
	}
	p.TrustScore = clamp(p.TrustScore + delta)
	r.peers[id] = p
}

// Touch refreshes a peer's last_seen after a successful contact.
func (r *Registry) Touch(id types.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[id]; ok {
		p.LastSeen = time.Now().UTC()
		r.peers[id] = p
	}
}

// EvictStale removes peers not seen within maxAge and returns how many
// were dropped. maxAge <= 0 disables eviction.
func (r *Registry) EvictStale(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	evicted := 0
	for id, p := range r.peers {
		if p.LastSeen.Before(cutoff) {
			delete(r.peers, id)
			evicted++
			r.logger.Info("evicted stale peer",
				zap.String("node_id", string(id)),
				zap.Time("last_seen", p.LastSeen))
		}
	}
	return evicted
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
