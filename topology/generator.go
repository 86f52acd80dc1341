package topology

import (
	"fmt"
	"math"
	"math/rand"
)

// GeneratorParams controls the random topology generator.
type GeneratorParams struct {
	Nodes           int
	Edges           int
	ComputeFraction float64
	BandwidthMin    float64
	BandwidthMax    float64
	DelayMin        float64
	DelayMax        float64
	CapacityMin     float64
	CapacityMax     float64
	Directed        bool
}

func DefaultGeneratorParams(nodes, edges int) GeneratorParams {
	return GeneratorParams{
		Nodes:           nodes,
		Edges:           edges,
		ComputeFraction: 0.6,
		BandwidthMin:    1000,
		BandwidthMax:    5000,
		DelayMin:        1,
		DelayMax:        5,
		CapacityMin:     10000,
		CapacityMax:     100000,
	}
}

// Generate builds a random topology with ids 1..Nodes. Endpoint pairs are unique; nodes that
// end up without links stay in the topology, so disconnected requests can occur.
func Generate(rng *rand.Rand, p GeneratorParams) (*Topology, error) {
	if p.Nodes < 2 {
		return nil, fmt.Errorf("%w: generator needs at least 2 nodes, got %d", ErrInvalidTopology, p.Nodes)
	}
	maxEdges := p.Nodes * (p.Nodes - 1)
	if !p.Directed {
		maxEdges /= 2
	}
	if p.Edges < 0 || p.Edges > maxEdges {
		return nil, fmt.Errorf("%w: cannot place %d edges on %d nodes", ErrInvalidTopology, p.Edges, p.Nodes)
	}

	nodes := make([]Node, p.Nodes)
	for i := range nodes {
		nodes[i] = Node{ID: NodeID(i + 1)}
	}

	computeCount := int(float64(p.Nodes) * p.ComputeFraction)
	for _, idx := range rng.Perm(p.Nodes)[:computeCount] {
		nodes[idx].IsComputing = true
		nodes[idx].Capacity = math.Round(uniform(rng, p.CapacityMin, p.CapacityMax))
		if nodes[idx].Capacity <= 0 {
			nodes[idx].Capacity = 1
		}
	}

	edges := make([]Edge, 0, p.Edges)
	used := make(map[[2]NodeID]bool, p.Edges)
	for len(edges) < p.Edges {
		u := NodeID(rng.Intn(p.Nodes) + 1)
		v := NodeID(rng.Intn(p.Nodes) + 1)
		if u == v {
			continue
		}
		key := pairKey(u, v, p.Directed)
		if used[key] {
			continue
		}
		used[key] = true
		edges = append(edges, Edge{
			U:                u,
			V:                v,
			Bandwidth:        math.Round(uniform(rng, p.BandwidthMin, p.BandwidthMax)),
			PropagationDelay: math.Round(uniform(rng, p.DelayMin, p.DelayMax)*100) / 100,
		})
	}

	return New(nodes, edges, p.Directed)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}
