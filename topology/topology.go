package topology

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// CapacityEpsilon absorbs float drift accumulated by repeated capacity consumption.
const CapacityEpsilon = 1e-9

// ErrInvalidTopology is returned when a loaded snapshot breaks a topology-level invariant.
// It is a configuration error and stops the run before any request is processed.
var ErrInvalidTopology = errors.New("invalid topology")

// ErrInsufficientCapacity is returned by Consume when the node cannot absorb the request.
var ErrInsufficientCapacity = errors.New("insufficient residual capacity")

// ErrUnknownNode is returned for ids that are not part of the topology.
var ErrUnknownNode = errors.New("unknown node")

type NodeID int64

// Node is a network node. Residual is the only field that changes during a run.
type Node struct {
	ID          NodeID  `json:"id" yaml:"id"`
	IsComputing bool    `json:"is_computing_node" yaml:"is_computing_node"`
	Capacity    float64 `json:"capacity" yaml:"capacity"`
	Residual    float64 `json:"residual_capacity" yaml:"-"`
}

// Edge is a static link between two nodes.
type Edge struct {
	U                NodeID  `json:"u" yaml:"u"`
	V                NodeID  `json:"v" yaml:"v"`
	Bandwidth        float64 `json:"bandwidth" yaml:"bandwidth"`
	PropagationDelay float64 `json:"propagation_delay" yaml:"propagation_delay"`
}

// Arc is one traversable direction of a base edge.
type Arc struct {
	To    NodeID
	Edge  int // index into Edges()
	Delay float64
}

// View is the read-only surface of a topology handed to code that must not mutate it.
type View interface {
	Directed() bool
	Node(id NodeID) (Node, bool)
	Nodes() []Node
	ComputingNodes() []Node
	Edges() []Edge
	Arcs(id NodeID) []Arc
	Residual(id NodeID) float64
}

// Topology is an owned handle over one network snapshot. Nodes and edges are immutable after
// New; residual capacity changes through Consume and every change is appended to a journal
// so incremental consumers can catch up without scanning every node.
type Topology struct {
	directed bool
	nodes    map[NodeID]*Node
	order    []NodeID
	edges    []Edge
	arcs     map[NodeID][]Arc

	mutex   sync.RWMutex
	journal []NodeID
}

// Fits reports whether residual can absorb required, within CapacityEpsilon.
func Fits(residual, required float64) bool {
	return residual+CapacityEpsilon >= required
}

// New validates nodes and edges and builds the topology. Every node starts with its residual
// capacity equal to its initial capacity.
func New(nodes []Node, edges []Edge, directed bool) (*Topology, error) {
	t := &Topology{
		directed: directed,
		nodes:    make(map[NodeID]*Node, len(nodes)),
		order:    make([]NodeID, 0, len(nodes)),
		edges:    make([]Edge, len(edges)),
		arcs:     make(map[NodeID][]Arc, len(nodes)),
	}

	for _, n := range nodes {
		if _, exists := t.nodes[n.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate node id %d", ErrInvalidTopology, n.ID)
		}
		if !finite(n.Capacity) || n.Capacity < 0 {
			return nil, fmt.Errorf("%w: node %d has capacity %v", ErrInvalidTopology, n.ID, n.Capacity)
		}
		if n.IsComputing && n.Capacity == 0 {
			return nil, fmt.Errorf("%w: computing node %d has zero capacity", ErrInvalidTopology, n.ID)
		}
		node := n
		node.Residual = n.Capacity
		t.nodes[n.ID] = &node
		t.order = append(t.order, n.ID)
	}
	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })

	seen := make(map[[2]NodeID]bool, len(edges))
	for i, e := range edges {
		if _, ok := t.nodes[e.U]; !ok {
			return nil, fmt.Errorf("%w: edge %d references unknown node %d", ErrInvalidTopology, i, e.U)
		}
		if _, ok := t.nodes[e.V]; !ok {
			return nil, fmt.Errorf("%w: edge %d references unknown node %d", ErrInvalidTopology, i, e.V)
		}
		if e.U == e.V {
			return nil, fmt.Errorf("%w: edge %d is a self loop on node %d", ErrInvalidTopology, i, e.U)
		}
		if !finite(e.Bandwidth) || e.Bandwidth < 0 {
			return nil, fmt.Errorf("%w: edge %d->%d has bandwidth %v", ErrInvalidTopology, e.U, e.V, e.Bandwidth)
		}
		if !finite(e.PropagationDelay) || e.PropagationDelay < 0 {
			return nil, fmt.Errorf("%w: edge %d->%d has propagation delay %v", ErrInvalidTopology, e.U, e.V, e.PropagationDelay)
		}
		key := pairKey(e.U, e.V, directed)
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate edge %d->%d", ErrInvalidTopology, e.U, e.V)
		}
		seen[key] = true

		t.edges[i] = e
		t.arcs[e.U] = append(t.arcs[e.U], Arc{To: e.V, Edge: i, Delay: e.PropagationDelay})
		if !directed {
			t.arcs[e.V] = append(t.arcs[e.V], Arc{To: e.U, Edge: i, Delay: e.PropagationDelay})
		}
	}

	log.Debugf("topology.New: node num: %d, edge num: %d, directed: %v", len(t.order), len(t.edges), directed)
	return t, nil
}

func pairKey(u, v NodeID, directed bool) [2]NodeID {
	if !directed && v < u {
		u, v = v, u
	}
	return [2]NodeID{u, v}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (t *Topology) Directed() bool { return t.directed }

func (t *Topology) Node(id NodeID) (Node, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

func (t *Topology) HasNode(id NodeID) bool {
	_, ok := t.nodes[id]
	return ok
}

// Nodes returns copies of all nodes ordered by id.
func (t *Topology) Nodes() []Node {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := make([]Node, 0, len(t.order))
	for _, id := range t.order {
		result = append(result, *t.nodes[id])
	}
	return result
}

// ComputingNodes returns copies of the computing nodes ordered by id.
func (t *Topology) ComputingNodes() []Node {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	var result []Node
	for _, id := range t.order {
		if n := t.nodes[id]; n.IsComputing {
			result = append(result, *n)
		}
	}
	return result
}

func (t *Topology) Edges() []Edge {
	result := make([]Edge, len(t.edges))
	copy(result, t.edges)
	return result
}

func (t *Topology) Edge(i int) Edge { return t.edges[i] }

func (t *Topology) EdgeCount() int { return len(t.edges) }

func (t *Topology) NodeCount() int { return len(t.order) }

// Arcs returns the traversable directions leaving id.
func (t *Topology) Arcs(id NodeID) []Arc {
	return t.arcs[id]
}

func (t *Topology) Residual(id NodeID) float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if n, ok := t.nodes[id]; ok {
		return n.Residual
	}
	return 0
}

// Consume commits a placement: the node's residual capacity drops by amount. A request that
// does not fit is refused, never silently accepted.
func (t *Topology) Consume(id NodeID, amount float64) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if !n.IsComputing || !Fits(n.Residual, amount) {
		return fmt.Errorf("%w: node %d residual %.4f, requested %.4f", ErrInsufficientCapacity, id, n.Residual, amount)
	}

	n.Residual -= amount
	if n.Residual < 0 {
		n.Residual = 0
	}
	t.journal = append(t.journal, id)
	return nil
}

// Revision is the number of residual mutations applied so far.
func (t *Topology) Revision() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.journal)
}

// ChangesSince returns the distinct nodes whose residual changed after revision rev, ordered
// by id, together with the current revision.
func (t *Topology) ChangesSince(rev int) ([]NodeID, int) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if rev < 0 || rev > len(t.journal) {
		rev = 0
	}
	seen := make(map[NodeID]bool)
	var changed []NodeID
	for _, id := range t.journal[rev:] {
		if !seen[id] {
			seen[id] = true
			changed = append(changed, id)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed, len(t.journal)
}

// Clone returns an independent handle with the same nodes, edges and current residual
// capacities and an empty journal.
func (t *Topology) Clone() *Topology {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	c := &Topology{
		directed: t.directed,
		nodes:    make(map[NodeID]*Node, len(t.nodes)),
		order:    append([]NodeID(nil), t.order...),
		edges:    append([]Edge(nil), t.edges...),
		arcs:     make(map[NodeID][]Arc, len(t.arcs)),
	}
	for id, n := range t.nodes {
		node := *n
		c.nodes[id] = &node
	}
	for id, arcs := range t.arcs {
		c.arcs[id] = append([]Arc(nil), arcs...)
	}
	return c
}

// Snapshot returns a read-only copy decoupled from later mutations of t.
func (t *Topology) Snapshot() View {
	return t.Clone()
}
