// Package routing implements rendezvous hashing for the clustered
// orchestrator: mapping a partition name onto its home node in the current
// cluster membership.
package routing

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
)

// Node is one orchestrator process participating in clustered mode.
type Node struct {
	ID   string
	Addr string
}

// Router computes, for a partition name, which node in the current
// membership snapshot owns it.
type Router struct {
	mu    sync.RWMutex
	nodes []Node
	self  string
}

// New creates a Router identifying selfID as this process's own node ID.
func New(selfID string) *Router {
	return &Router{self: selfID}
}

// SetNodes replaces the current membership snapshot.
func (r *Router) SetNodes(nodes []Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = make([]Node, len(nodes))
	copy(r.nodes, nodes)
}

// Nodes returns a copy of the current membership snapshot.
func (r *Router) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Node, len(r.nodes))
	copy(result, r.nodes)
	return result
}

// HomeNode returns the node that owns partitionName under the current
// membership snapshot, via highest-random-weight rendezvous hashing.
func (r *Router) HomeNode(partitionName string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return Node{}, false
	}

	var home Node
	var maxWeight uint64
	first := true
	for _, node := range r.nodes {
		weight := computeWeight(node.ID, partitionName)
		if first || weight > maxWeight {
			maxWeight = weight
			home = node
			first = false
		}
	}
	return home, true
}

// IsHomeNode reports whether this router's own node owns partitionName.
func (r *Router) IsHomeNode(partitionName string) bool {
	home, ok := r.HomeNode(partitionName)
	return ok && home.ID == r.self
}

// SelfID returns this router's own node ID.
func (r *Router) SelfID() string { return r.self }

// OwnedPartitions filters partitionNames down to those this router's node
// owns, preserving input order. Deterministic given a fixed membership
// snapshot: every process computes the same partition-to-node mapping
// independently, no coordination round trip required.
func (r *Router) OwnedPartitions(partitionNames []string) []string {
	var owned []string
	for _, name := range partitionNames {
		if r.IsHomeNode(name) {
			owned = append(owned, name)
		}
	}
	return owned
}

// RankedNodes returns every node ranked by weight for partitionName, most
// preferred first, used for future failover fallbacks.
func (r *Router) RankedNodes(partitionName string) []Node {
	r.mu.RLock()
	nodes := make([]Node, len(r.nodes))
	copy(nodes, r.nodes)
	r.mu.RUnlock()

	type weighted struct {
		node   Node
		weight uint64
	}
	weights := make([]weighted, len(nodes))
	for i, n := range nodes {
		weights[i] = weighted{node: n, weight: computeWeight(n.ID, partitionName)}
	}
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].weight != weights[j].weight {
			return weights[i].weight > weights[j].weight
		}
		return weights[i].node.ID < weights[j].node.ID
	})
	result := make([]Node, len(weights))
	for i, w := range weights {
		result[i] = w.node
	}
	return result
}

func computeWeight(nodeID, partitionName string) uint64 {
	h := sha256.New()
	h.Write([]byte(nodeID))
	h.Write([]byte{0})
	h.Write([]byte(partitionName))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
