package memory

import (
	"context"
	"sort"
	"sync"

	"vidcall/internal/core/domain"
	"vidcall/internal/core/ports"
)

// MemoryPresenceRegistry is the in-process peer -> connection map. Every
// mutation is a single replace or remove under the lock; broadcasts are
// derived from a snapshot taken after the mutation completes.
type MemoryPresenceRegistry struct {
	peers map[domain.PeerID]ports.Connection
	mu    sync.RWMutex
}

func NewMemoryPresenceRegistry() ports.PresenceRegistry {
	return &MemoryPresenceRegistry{
		peers: make(map[domain.PeerID]ports.Connection),
	}
}

// Register binds peerID to conn. A prior mapping for the same peer is
// overwritten: latest registration wins.
func (r *MemoryPresenceRegistry) Register(ctx context.Context, peerID domain.PeerID, conn ports.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[peerID] = conn
	return nil
}

func (r *MemoryPresenceRegistry) Resolve(ctx context.Context, peerID domain.PeerID) (ports.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.peers[peerID]
	return conn, exists
}

// Unregister removes every mapping bound to conn. Only the mapping that
// still points at conn is removed, so a stale disconnect arriving after the
// peer re-registered on a new connection does not evict the new one.
func (r *MemoryPresenceRegistry) Unregister(ctx context.Context, conn ports.Connection) (domain.PeerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for peerID, bound := range r.peers {
		if bound.ID() == conn.ID() {
			delete(r.peers, peerID)
			return peerID, true
		}
	}
	return "", false
}

func (r *MemoryPresenceRegistry) Snapshot(ctx context.Context) []domain.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]domain.PeerID, 0, len(r.peers))
	for peerID := range r.peers {
		peers = append(peers, peerID)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

func (r *MemoryPresenceRegistry) Connections(ctx context.Context) []ports.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]ports.Connection, 0, len(r.peers))
	for _, conn := range r.peers {
		conns = append(conns, conn)
	}
	return conns
}
