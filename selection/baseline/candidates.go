package baseline

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// Candidate is a computing node that can host a request and is reachable from its source
// over bandwidth-feasible links.
type Candidate struct {
	Node        topology.Node
	Propagation float64
	Path        []topology.NodeID
}

// FeasibleGraph is the base topology restricted to links carrying at least bandwidth,
// weighted by propagation delay. Undirected links become two arcs.
func FeasibleGraph(topo topology.View, bandwidth float64) *simple.WeightedDirectedGraph {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, n := range topo.Nodes() {
		g.AddNode(simple.Node(n.ID))
	}
	for _, e := range topo.Edges() {
		if e.Bandwidth < bandwidth {
			continue
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(e.U), simple.Node(e.V), e.PropagationDelay))
		if !topo.Directed() {
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(e.V), simple.Node(e.U), e.PropagationDelay))
		}
	}
	return g
}

// Candidates returns the reachable computing nodes other than the source whose residual
// capacity fits the request, ordered by id. fits counts the capacity-feasible nodes whether
// reachable or not. Among equal-delay routes the one with the smallest node id sequence is
// reported.
func Candidates(topo topology.View, req common.Request) (candidates []Candidate, fits int) {
	g := FeasibleGraph(topo, req.Bandwidth)
	shortest := path.DijkstraAllFrom(simple.Node(req.Source), g)

	nodes := topo.ComputingNodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for _, n := range nodes {
		if n.ID == req.Source || !topology.Fits(n.Residual, req.Capacity) {
			continue
		}
		fits++
		weight := shortest.WeightTo(int64(n.ID))
		if math.IsInf(weight, 1) {
			continue
		}
		route := firstRoute(shortest, n.ID)
		if len(route) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Node:        n,
			Propagation: weight,
			Path:        route,
		})
	}
	return candidates, fits
}

// firstRoute picks the lexicographically smallest of the shortest routes to id, so the
// reported path does not depend on map iteration order inside the graph.
func firstRoute(shortest path.ShortestAlts, id topology.NodeID) []topology.NodeID {
	var best []topology.NodeID
	shortest.AllToFunc(int64(id), func(route []graph.Node) {
		if best == nil || lessRoute(route, best) {
			best = nodeIDs(route)
		}
	})
	return best
}

func lessRoute(route []graph.Node, than []topology.NodeID) bool {
	for i := 0; i < len(route) && i < len(than); i++ {
		if a, b := topology.NodeID(route[i].ID()), than[i]; a != b {
			return a < b
		}
	}
	return len(route) < len(than)
}

func nodeIDs(route []graph.Node) []topology.NodeID {
	ids := make([]topology.NodeID, len(route))
	for i, n := range route {
		ids[i] = topology.NodeID(n.ID())
	}
	return ids
}

// Choice is the answer of a baseline selector.
type Choice struct {
	Candidate
	Delay  float64
	Reason common.Reason
}

func (c *Choice) Found() bool { return c.Reason == common.ReasonNone }

// choose turns the ranked winner into a Choice, applying the shared delay bound.
func choose(candidates []Candidate, fits int, req common.Request, delay common.DelayModel, better func(a, b Candidate) bool) *Choice {
	if fits == 0 {
		return &Choice{Reason: common.ReasonNoCandidate}
	}
	if len(candidates) == 0 {
		return &Choice{Reason: common.ReasonUnreachable}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
		}
	}

	choice := &Choice{
		Candidate: best,
		Delay:     delay.EndToEnd(best.Propagation, best.Node.Capacity, best.Node.Residual),
	}
	if choice.Delay > req.MaxDelay+delayEpsilon {
		choice.Reason = common.ReasonDelayExceeded
	}
	return choice
}

const delayEpsilon = 1e-9
