package expansion

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// deadlineStride is how many construction steps run between two deadline checks.
const deadlineStride = 256

// Build constructs the expanded graph for one request from scratch.
//
// On ErrEmptyGraph the graph is returned as well so callers can record its size. On an
// expired deadline no graph is returned.
func Build(ctx context.Context, topo topology.View, req common.Request, p Params) (*Graph, common.GraphStats, error) {
	start := time.Now()
	g, err := build(ctx, topo, req, p)
	if err != nil {
		return nil, common.GraphStats{ExpansionTime: time.Since(start)}, err
	}

	stats := graphStats(g)
	stats.VerticesAdded = stats.Vertices
	stats.EdgesAdded = stats.Edges
	stats.ExpansionTime = time.Since(start)

	log.Debugf("expansion.Build: source=%d, L=%d, vertices=%d (buckets=%d), edges=%d, elapsed=%v",
		req.Source, p.Granularity, stats.Vertices, stats.BucketVertices, stats.Edges, stats.ExpansionTime)

	if g.Empty(req.Source) {
		return g, stats, fmt.Errorf("%w: source %d, bandwidth %.2f, capacity %.2f",
			common.ErrEmptyGraph, req.Source, req.Bandwidth, req.Capacity)
	}
	return g, stats, nil
}

func build(ctx context.Context, topo topology.View, req common.Request, p Params) (*Graph, error) {
	if p.Granularity < 1 {
		return nil, fmt.Errorf("granularity must be at least 1, got %d", p.Granularity)
	}
	g := NewGraph()
	steps := 0

	nodes := topo.Nodes()
	for _, n := range nodes {
		g.AddVertex(Transit(n.ID))
	}

	for i, e := range topo.Edges() {
		if steps++; steps%deadlineStride == 0 {
			if err := common.DeadlineError(ctx); err != nil {
				return nil, err
			}
		}
		addTransit(g, i, e, req.Bandwidth, topo.Directed())
	}

	for _, n := range nodes {
		if !n.IsComputing {
			continue
		}
		if steps++; steps%deadlineStride == 0 {
			if err := common.DeadlineError(ctx); err != nil {
				return nil, err
			}
		}
		r := Buckets(n, n.Residual, req.Capacity, p.Granularity)
		for b := r.Lo; b <= r.Hi; b++ {
			addBucket(g, n, n.Residual, b, p)
		}
		g.setRange(n.ID, r)
	}

	if err := common.DeadlineError(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// addTransit materialises both directions of base edge i if it carries the bandwidth. It
// returns the number of arcs added.
func addTransit(g *Graph, i int, e topology.Edge, bandwidth float64, directed bool) int {
	if e.Bandwidth < bandwidth {
		return 0
	}
	added := 0
	arc := Arc{Weight: e.PropagationDelay, Edge: i}
	if g.AddArc(Transit(e.U), Transit(e.V), arc) {
		added++
	}
	if !directed && g.AddArc(Transit(e.V), Transit(e.U), arc) {
		added++
	}
	return added
}

func removeTransit(g *Graph, e topology.Edge, directed bool) int {
	removed := 0
	if g.RemoveArc(Transit(e.U), Transit(e.V)) {
		removed++
	}
	if !directed && g.RemoveArc(Transit(e.V), Transit(e.U)) {
		removed++
	}
	return removed
}

func addBucket(g *Graph, n topology.Node, residual float64, bucket int, p Params) {
	v := Vertex{Node: n.ID, Bucket: bucket}
	g.AddVertex(v)
	g.AddArc(Transit(n.ID), v, Arc{Weight: p.computeWeight(n, residual, bucket), Edge: computeArc})
}

func graphStats(g *Graph) common.GraphStats {
	return common.GraphStats{
		Vertices:       g.VertexCount(),
		Edges:          g.EdgeCount(),
		BucketVertices: g.BucketVertexCount(),
		Bytes:          g.Footprint(),
	}
}
