package expansion

import (
	"sort"
	"unsafe"

	"github.com/FeiLiu52/TVT-code/topology"
)

// Vertex is an expansion vertex. Bucket 0 is the transit copy of a base node; buckets 1..L
// represent a computing node served at one discretized residual-capacity level.
type Vertex struct {
	Node   topology.NodeID
	Bucket int
}

// Transit returns the transit vertex of a base node.
func Transit(id topology.NodeID) Vertex {
	return Vertex{Node: id}
}

func (v Vertex) IsBucket() bool { return v.Bucket > 0 }

// Less orders vertices by base node id, then bucket.
func (v Vertex) Less(o Vertex) bool {
	if v.Node != o.Node {
		return v.Node < o.Node
	}
	return v.Bucket < o.Bucket
}

// computeArc marks arcs from a transit vertex to one of its own bucket vertices.
const computeArc = -1

// Arc is a weighted expansion edge.
type Arc struct {
	Weight float64
	Edge   int // index of the base edge, computeArc for transit->bucket arcs
}

// Graph is the expanded graph, stored as an adjacency map with a reverse index so a vertex
// and every arc touching it can be evicted together.
type Graph struct {
	out map[Vertex]map[Vertex]Arc
	in  map[Vertex]map[Vertex]struct{}

	ranges      map[topology.NodeID]BucketRange
	transitArcs int
	computeArcs int
	buckets     int
}

func NewGraph() *Graph {
	return &Graph{
		out:    make(map[Vertex]map[Vertex]Arc),
		in:     make(map[Vertex]map[Vertex]struct{}),
		ranges: make(map[topology.NodeID]BucketRange),
	}
}

// AddVertex inserts v and reports whether it was new.
func (g *Graph) AddVertex(v Vertex) bool {
	if _, exists := g.out[v]; exists {
		return false
	}
	g.out[v] = make(map[Vertex]Arc)
	g.in[v] = make(map[Vertex]struct{})
	if v.IsBucket() {
		g.buckets++
	}
	return true
}

func (g *Graph) HasVertex(v Vertex) bool {
	_, exists := g.out[v]
	return exists
}

// RemoveVertex evicts v with all incident arcs and returns the number of arcs removed.
func (g *Graph) RemoveVertex(v Vertex) int {
	if !g.HasVertex(v) {
		return 0
	}
	removed := 0
	for to := range g.out[v] {
		g.RemoveArc(v, to)
		removed++
	}
	for from := range g.in[v] {
		g.RemoveArc(from, v)
		removed++
	}
	delete(g.out, v)
	delete(g.in, v)
	if v.IsBucket() {
		g.buckets--
	}
	return removed
}

// AddArc inserts or reweights the arc u->v. Both endpoints must exist. It reports whether the
// arc was new.
func (g *Graph) AddArc(u, v Vertex, arc Arc) bool {
	_, exists := g.out[u][v]
	g.out[u][v] = arc
	if exists {
		return false
	}
	g.in[v][u] = struct{}{}
	if arc.Edge == computeArc {
		g.computeArcs++
	} else {
		g.transitArcs++
	}
	return true
}

// RemoveArc deletes u->v and reports whether it existed.
func (g *Graph) RemoveArc(u, v Vertex) bool {
	arc, exists := g.out[u][v]
	if !exists {
		return false
	}
	delete(g.out[u], v)
	delete(g.in[v], u)
	if arc.Edge == computeArc {
		g.computeArcs--
	} else {
		g.transitArcs--
	}
	return true
}

func (g *Graph) ArcWeight(u, v Vertex) (float64, bool) {
	arc, exists := g.out[u][v]
	return arc.Weight, exists
}

// Out returns the arcs leaving v. The map is owned by the graph and must not be modified.
func (g *Graph) Out(v Vertex) map[Vertex]Arc {
	return g.out[v]
}

// Range returns the materialised bucket range of a computing node.
func (g *Graph) Range(id topology.NodeID) BucketRange {
	if r, ok := g.ranges[id]; ok {
		return r
	}
	return emptyRange
}

func (g *Graph) setRange(id topology.NodeID, r BucketRange) {
	if r.Empty() {
		delete(g.ranges, id)
		return
	}
	g.ranges[id] = r
}

func (g *Graph) VertexCount() int { return len(g.out) }

func (g *Graph) EdgeCount() int { return g.transitArcs + g.computeArcs }

func (g *Graph) BucketVertexCount() int { return g.buckets }

func (g *Graph) TransitArcCount() int { return g.transitArcs }

// mapHeader approximates the fixed cost of one Go map header plus its first bucket.
const mapHeader = 48 + 8*8

var (
	vertexSize = int64(unsafe.Sizeof(Vertex{}))
	arcSize    = int64(unsafe.Sizeof(Arc{}))
	rangeSize  = int64(unsafe.Sizeof(topology.NodeID(0)) + unsafe.Sizeof(BucketRange{}))
)

// Footprint estimates the bytes held by the graph from its vertex, arc and range counts.
// Every vertex owns a key and an adjacency map in both indexes, every arc an entry in both.
func (g *Graph) Footprint() int64 {
	vertices, arcs := int64(len(g.out)), int64(g.EdgeCount())
	size := int64(3 * mapHeader)
	size += vertices * 2 * (vertexSize + mapHeader)
	size += arcs * (vertexSize + arcSize) // out
	size += arcs * vertexSize             // in
	size += int64(len(g.ranges)) * rangeSize
	return size
}

// Candidates returns the bucket vertices of every computing node except exclude, ordered by
// node id then bucket.
func (g *Graph) Candidates(exclude topology.NodeID) []Vertex {
	ids := make([]topology.NodeID, 0, len(g.ranges))
	for id := range g.ranges {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var result []Vertex
	for _, id := range ids {
		r := g.ranges[id]
		for b := r.Lo; b <= r.Hi; b++ {
			result = append(result, Vertex{Node: id, Bucket: b})
		}
	}
	return result
}

// Empty reports whether the graph cannot serve a request from source: no transit arc
// survived the bandwidth filter or no node other than source has a feasible bucket.
func (g *Graph) Empty(source topology.NodeID) bool {
	if g.transitArcs == 0 {
		return true
	}
	for id := range g.ranges {
		if id != source {
			return false
		}
	}
	return true
}

// ArcKey identifies one arc in Arcs.
type ArcKey struct {
	From, To Vertex
	Weight   float64
}

// Arcs lists every arc in a stable order. It is meant for comparisons in tests and tooling.
func (g *Graph) Arcs() []ArcKey {
	result := make([]ArcKey, 0, g.EdgeCount())
	for u, arcs := range g.out {
		for v, arc := range arcs {
			result = append(result, ArcKey{From: u, To: v, Weight: arc.Weight})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].From != result[j].From {
			return result[i].From.Less(result[j].From)
		}
		return result[i].To.Less(result[j].To)
	})
	return result
}
