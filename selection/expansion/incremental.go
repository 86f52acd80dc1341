package expansion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// Expander keeps one expanded graph alive across a request sequence and patches it with the
// changes since the previous request. It is bound to a single topology and granularity.
type Expander struct {
	topo   *topology.Topology
	params Params

	graph *Graph
	valid bool

	// base edge indexes ordered by bandwidth; sorted[cut:] are materialised
	sorted []int
	cut    int

	capacity float64
	revision int
}

func NewExpander(topo *topology.Topology, p Params) (*Expander, error) {
	if topo == nil {
		return nil, fmt.Errorf("expander needs a topology")
	}
	if p.Granularity < 1 {
		return nil, fmt.Errorf("granularity must be at least 1, got %d", p.Granularity)
	}

	sorted := make([]int, topo.EdgeCount())
	for i := range sorted {
		sorted[i] = i
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return topo.Edge(sorted[i]).Bandwidth < topo.Edge(sorted[j]).Bandwidth
	})

	log.Infof("expansion.NewExpander: nodes=%d, edges=%d, L=%d", topo.NodeCount(), topo.EdgeCount(), p.Granularity)
	return &Expander{topo: topo, params: p, sorted: sorted}, nil
}

func (e *Expander) Params() Params { return e.params }

// Invalidate drops the cached graph; the next Expand rebuilds from scratch.
func (e *Expander) Invalidate() {
	e.valid = false
	e.graph = nil
}

// Expand brings the cached graph in line with the current topology state and request.
// Errors follow Build; a timeout additionally invalidates the cache.
func (e *Expander) Expand(ctx context.Context, topo *topology.Topology, req common.Request) (*Graph, common.GraphStats, error) {
	if topo != e.topo {
		return nil, common.GraphStats{}, fmt.Errorf("%w: expander created for another topology instance", common.ErrForeignTopology)
	}

	start := time.Now()
	var stats common.GraphStats
	var err error
	if e.valid {
		stats, err = e.patch(ctx, req)
	} else {
		stats, err = e.rebuild(ctx, req)
	}
	stats.ExpansionTime = time.Since(start)
	if err != nil {
		if !common.IsFatal(err) {
			e.Invalidate()
		}
		return nil, stats, err
	}

	log.Debugf("expansion.Expand: source=%d, vertices=%d (+%d -%d =%d), edges=%d (+%d -%d =%d), elapsed=%v",
		req.Source, stats.Vertices, stats.VerticesAdded, stats.VerticesRemoved, stats.VerticesReused,
		stats.Edges, stats.EdgesAdded, stats.EdgesRemoved, stats.EdgesReused, stats.ExpansionTime)

	if e.graph.Empty(req.Source) {
		return e.graph, stats, fmt.Errorf("%w: source %d, bandwidth %.2f, capacity %.2f",
			common.ErrEmptyGraph, req.Source, req.Bandwidth, req.Capacity)
	}
	return e.graph, stats, nil
}

func (e *Expander) rebuild(ctx context.Context, req common.Request) (common.GraphStats, error) {
	// revision first: changes racing the build are replayed on the next patch
	revision := e.topo.Revision()
	g, err := build(ctx, e.topo, req, e.params)
	if err != nil {
		return common.GraphStats{}, err
	}

	e.graph = g
	e.cut = e.cutFor(req.Bandwidth)
	e.capacity = req.Capacity
	e.revision = revision
	e.valid = true

	stats := graphStats(g)
	stats.VerticesAdded = stats.Vertices
	stats.EdgesAdded = stats.Edges
	return stats, nil
}

// cutFor is the first position in sorted whose edge carries bandwidth.
func (e *Expander) cutFor(bandwidth float64) int {
	return sort.Search(len(e.sorted), func(i int) bool {
		return e.topo.Edge(e.sorted[i]).Bandwidth >= bandwidth
	})
}

func (e *Expander) patch(ctx context.Context, req common.Request) (common.GraphStats, error) {
	g := e.graph
	before := graphStats(g)
	var stats common.GraphStats
	directed := e.topo.Directed()
	steps := 0

	tick := func() error {
		if steps++; steps%deadlineStride == 0 {
			return common.DeadlineError(ctx)
		}
		return nil
	}

	// transit layer: only edges between the old and the new cut change
	cut := e.cutFor(req.Bandwidth)
	for i := cut; i < e.cut; i++ {
		if err := tick(); err != nil {
			return stats, err
		}
		idx := e.sorted[i]
		stats.EdgesAdded += addTransit(g, idx, e.topo.Edge(idx), math.Inf(-1), directed)
	}
	for i := e.cut; i < cut; i++ {
		if err := tick(); err != nil {
			return stats, err
		}
		stats.EdgesRemoved += removeTransit(g, e.topo.Edge(e.sorted[i]), directed)
	}
	e.cut = cut

	// bucket layer: nodes whose residual changed, or all of them when required capacity moved
	changed, revision := e.topo.ChangesSince(e.revision)
	dirty := changed
	if req.Capacity != e.capacity {
		dirty = nil
		for _, n := range e.topo.ComputingNodes() {
			dirty = append(dirty, n.ID)
		}
	}

	for _, id := range dirty {
		if err := tick(); err != nil {
			return stats, err
		}
		n, ok := e.topo.Node(id)
		if !ok || !n.IsComputing {
			continue
		}
		e.patchNode(g, n, req.Capacity, &stats)
	}

	if err := common.DeadlineError(ctx); err != nil {
		return stats, err
	}
	if err := e.verify(g, dirty, req.Capacity); err != nil {
		return stats, err
	}

	e.capacity = req.Capacity
	e.revision = revision

	after := graphStats(g)
	stats.Vertices = after.Vertices
	stats.Edges = after.Edges
	stats.BucketVertices = after.BucketVertices
	stats.Bytes = after.Bytes
	stats.VerticesReused = before.Vertices - stats.VerticesRemoved
	stats.EdgesReused = before.Edges - stats.EdgesRemoved
	return stats, nil
}

// patchNode moves one node's materialised bucket range to its current feasible range.
func (e *Expander) patchNode(g *Graph, n topology.Node, required float64, stats *common.GraphStats) {
	old := g.Range(n.ID)
	cur := Buckets(n, n.Residual, required, e.params.Granularity)

	for b := old.Lo; b <= old.Hi; b++ {
		if !cur.Contains(b) {
			stats.EdgesRemoved += g.RemoveVertex(Vertex{Node: n.ID, Bucket: b})
			stats.VerticesRemoved++
		}
	}
	for b := cur.Lo; b <= cur.Hi; b++ {
		if !old.Contains(b) {
			addBucket(g, n, n.Residual, b, e.params)
			stats.VerticesAdded++
			stats.EdgesAdded++
		}
	}

	// only the top bucket is clipped to the residual, so only old and new tops move
	for _, b := range []int{cur.Hi, old.Hi} {
		if cur.Contains(b) && old.Contains(b) {
			g.AddArc(Transit(n.ID), Vertex{Node: n.ID, Bucket: b},
				Arc{Weight: e.params.computeWeight(n, n.Residual, b), Edge: computeArc})
		}
	}
	g.setRange(n.ID, cur)
}

// verify checks every patched node against a recomputation of its feasible range.
func (e *Expander) verify(g *Graph, dirty []topology.NodeID, required float64) error {
	for _, id := range dirty {
		n, ok := e.topo.Node(id)
		if !ok || !n.IsComputing {
			continue
		}
		want := Buckets(n, n.Residual, required, e.params.Granularity)
		got := g.Range(id)
		if want != got && !(want.Empty() && got.Empty()) {
			return fmt.Errorf("%w: node %d caches buckets %v, feasible %v", common.ErrCacheConsistency, id, got, want)
		}
		for b := want.Lo; b <= want.Hi; b++ {
			w, exists := g.ArcWeight(Transit(id), Vertex{Node: id, Bucket: b})
			if !exists {
				return fmt.Errorf("%w: node %d bucket %d has no compute arc", common.ErrCacheConsistency, id, b)
			}
			if b == want.Hi && w != e.params.computeWeight(n, n.Residual, b) {
				return fmt.Errorf("%w: node %d bucket %d weight %.6f is stale", common.ErrCacheConsistency, id, b, w)
			}
		}
	}
	return nil
}

// Validate confirms that a vertex chosen from the cached graph is still feasible against the
// live topology. A stale vertex is a cache consistency violation.
func (e *Expander) Validate(v Vertex, required float64) error {
	n, ok := e.topo.Node(v.Node)
	if !ok {
		return fmt.Errorf("%w: chosen node %d is unknown", common.ErrCacheConsistency, v.Node)
	}
	r := Buckets(n, n.Residual, required, e.params.Granularity)
	if !r.Contains(v.Bucket) || !topology.Fits(n.Residual, required) {
		return fmt.Errorf("%w: vertex (%d, %d) served with residual %.4f, required %.4f",
			common.ErrCacheConsistency, v.Node, v.Bucket, n.Residual, required)
	}
	return nil
}
