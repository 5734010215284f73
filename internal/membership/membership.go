// Package membership discovers other orchestrator processes participating
// in clustered mode and keeps a routing.Router's node snapshot current.
package membership

import (
	"sync"

	"github.com/GetAdriAI/idxr/internal/routing"
)

// GossipConfig configures the gossip transport. Mirrors the cluster section
// of the top-level Config.
type GossipConfig struct {
	NodeID        string
	BindAddr      string
	BindPort      int
	AdvertiseAddr string
	AdvertisePort int
	SeedNodes     []string
}

// Provider discovers cluster nodes, static or dynamic.
type Provider interface {
	Nodes() []routing.Node
	OnChange(func([]routing.Node))
	Start() error
	Stop()
}

// StaticProvider serves a fixed node list, useful for tests and
// single-process runs.
type StaticProvider struct {
	mu        sync.RWMutex
	nodes     []routing.Node
	callbacks []func([]routing.Node)
}

// NewStaticProvider builds a StaticProvider from a fixed node list.
func NewStaticProvider(nodes []routing.Node) *StaticProvider {
	cp := make([]routing.Node, len(nodes))
	copy(cp, nodes)
	return &StaticProvider{nodes: cp}
}

func (p *StaticProvider) Nodes() []routing.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]routing.Node, len(p.nodes))
	copy(result, p.nodes)
	return result
}

func (p *StaticProvider) OnChange(cb func([]routing.Node)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

func (p *StaticProvider) Start() error { return nil }
func (p *StaticProvider) Stop()        {}

// SetNodes replaces the node list and notifies registered callbacks.
func (p *StaticProvider) SetNodes(nodes []routing.Node) {
	p.mu.Lock()
	p.nodes = make([]routing.Node, len(nodes))
	copy(p.nodes, nodes)
	callbacks := make([]func([]routing.Node), len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.Unlock()

	nodeCopy := make([]routing.Node, len(nodes))
	copy(nodeCopy, nodes)
	for _, cb := range callbacks {
		cb(nodeCopy)
	}
}

// Manager wires a Provider's node updates into a routing.Router, so the
// orchestrator only ever reads through the router.
type Manager struct {
	provider Provider
	router   *routing.Router
}

// NewManager builds a Manager over provider and router.
func NewManager(provider Provider, router *routing.Router) *Manager {
	return &Manager{provider: provider, router: router}
}

// Start performs an initial sync, registers for future changes, and starts
// the underlying provider.
func (m *Manager) Start() error {
	m.router.SetNodes(m.provider.Nodes())
	m.provider.OnChange(func(nodes []routing.Node) {
		m.router.SetNodes(nodes)
	})
	return m.provider.Start()
}

// Stop halts the underlying provider.
func (m *Manager) Stop() {
	m.provider.Stop()
}

// Nodes returns the provider's current node list.
func (m *Manager) Nodes() []routing.Node {
	return m.provider.Nodes()
}
