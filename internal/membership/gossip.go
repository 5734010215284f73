package membership

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/GetAdriAI/idxr/internal/routing"
)

// GossipProvider discovers cluster nodes via hashicorp/memberlist,
// recomputing the membership snapshot whenever a node joins, leaves, or
// updates.
type GossipProvider struct {
	mu        sync.RWMutex
	list      *memberlist.Memberlist
	nodes     []routing.Node
	callbacks []func([]routing.Node)
	cfg       GossipConfig
	stopCh    chan struct{}
	updateCh  chan struct{}
	started   bool
	stopped   bool
}

// NewGossipProvider builds a GossipProvider from cfg. Start must be called
// before Nodes reflects any discovered peers.
func NewGossipProvider(cfg GossipConfig) *GossipProvider {
	return &GossipProvider{
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		updateCh: make(chan struct{}, 1),
	}
}

func (p *GossipProvider) Nodes() []routing.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]routing.Node, len(p.nodes))
	copy(result, p.nodes)
	return result
}

func (p *GossipProvider) OnChange(cb func([]routing.Node)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// Start joins (or forms) the gossip cluster and begins tracking membership.
func (p *GossipProvider) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	mlCfg := memberlist.DefaultLANConfig()
	if p.cfg.BindAddr != "" {
		mlCfg.BindAddr = p.cfg.BindAddr
	}
	if p.cfg.BindPort > 0 {
		mlCfg.BindPort = p.cfg.BindPort
	}
	if p.cfg.AdvertiseAddr != "" {
		mlCfg.AdvertiseAddr = p.cfg.AdvertiseAddr
	}
	if p.cfg.AdvertisePort > 0 {
		mlCfg.AdvertisePort = p.cfg.AdvertisePort
	}

	nodeID := p.cfg.NodeID
	if nodeID == "" {
		nodeID = fmt.Sprintf("%s:%d", mlCfg.BindAddr, mlCfg.BindPort)
	}
	mlCfg.Name = nodeID
	mlCfg.Events = &eventDelegate{provider: p}
	mlCfg.Logger = log.New(discardWriter{}, "", 0)

	list, err := memberlist.Create(mlCfg)
	if err != nil {
		return fmt.Errorf("membership: creating memberlist: %w", err)
	}
	p.list = list

	go p.updateLoop()

	if len(p.cfg.SeedNodes) > 0 {
		if _, err := list.Join(p.cfg.SeedNodes); err != nil {
			list.Shutdown()
			return fmt.Errorf("membership: joining seed nodes: %w", err)
		}
	}

	p.scheduleUpdate()
	return nil
}

// Stop leaves the gossip cluster and halts the update loop.
func (p *GossipProvider) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	list := p.list
	p.mu.Unlock()

	close(p.stopCh)
	if list != nil {
		list.Leave(time.Second)
		list.Shutdown()
	}
}

// NumMembers reports the current gossip cluster size.
func (p *GossipProvider) NumMembers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.list == nil {
		return 0
	}
	return p.list.NumMembers()
}

func (p *GossipProvider) scheduleUpdate() {
	select {
	case p.updateCh <- struct{}{}:
	default:
	}
}

func (p *GossipProvider) updateLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.updateCh:
			p.refresh()
		}
	}
}

func (p *GossipProvider) refresh() {
	p.mu.RLock()
	list := p.list
	stopped := p.stopped
	p.mu.RUnlock()
	if list == nil || stopped {
		return
	}

	members := list.Members()
	nodes := make([]routing.Node, 0, len(members))
	for _, m := range members {
		nodes = append(nodes, routing.Node{ID: m.Name, Addr: net.JoinHostPort(m.Addr.String(), fmt.Sprint(m.Port))})
	}

	p.mu.Lock()
	p.nodes = nodes
	callbacks := make([]func([]routing.Node), len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.Unlock()

	nodeCopy := make([]routing.Node, len(nodes))
	copy(nodeCopy, nodes)
	for _, cb := range callbacks {
		cb(nodeCopy)
	}
}

type eventDelegate struct {
	provider *GossipProvider
}

func (d *eventDelegate) NotifyJoin(*memberlist.Node)   { d.provider.scheduleUpdate() }
func (d *eventDelegate) NotifyLeave(*memberlist.Node)  { d.provider.scheduleUpdate() }
func (d *eventDelegate) NotifyUpdate(*memberlist.Node) { d.provider.scheduleUpdate() }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
