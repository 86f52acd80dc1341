package shortest_path

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/selection/expansion"
	"github.com/FeiLiu52/TVT-code/topology"
)

// DelayEpsilon is the tolerance used when comparing path weights.
const DelayEpsilon = 1e-9

// Selection is the answer of the shortest path selector. Vertex is the zero value and Reason
// is set when no node qualifies.
type Selection struct {
	Vertex expansion.Vertex
	Delay  float64
	Path   []topology.NodeID
	Reason common.Reason
}

func (s *Selection) Found() bool { return s.Reason == common.ReasonNone }

// Select searches g from the transit vertex of req.Source and picks the bucket vertex with
// minimal total weight within req.MaxDelay. Ties go to the lowest node id; within a node the
// lowest bucket of minimal weight is used.
func Select(ctx context.Context, g *expansion.Graph, req common.Request) (*Selection, error) {
	candidates := g.Candidates(req.Source)
	if len(candidates) == 0 {
		return &Selection{Reason: common.ReasonEmptyGraph}, nil
	}

	tree, err := Dijkstra(ctx, g, expansion.Transit(req.Source))
	if err != nil {
		return nil, err
	}

	var best *expansion.Vertex
	bestDelay := 0.0
	for i := range candidates {
		v := candidates[i]
		if !tree.Reachable(v) {
			continue
		}
		d := tree.Distance(v)
		// candidates are ordered by node then bucket, so strict improvement keeps the lowest
		if best == nil || d < bestDelay-DelayEpsilon {
			best = &candidates[i]
			bestDelay = d
		}
	}

	if best == nil {
		log.Debugf("shortest_path.Select: source=%d, %d candidate vertices, none reachable", req.Source, len(candidates))
		return &Selection{Reason: common.ReasonUnreachable}, nil
	}
	if bestDelay > req.MaxDelay+DelayEpsilon {
		log.Debugf("shortest_path.Select: source=%d, best node %d delay %.4f exceeds %.4f",
			req.Source, best.Node, bestDelay, req.MaxDelay)
		return &Selection{Reason: common.ReasonDelayExceeded, Delay: bestDelay}, nil
	}

	return &Selection{
		Vertex: *best,
		Delay:  bestDelay,
		Path:   collapse(tree.PathTo(*best)),
	}, nil
}

// collapse maps an expansion path onto base node ids.
func collapse(path []expansion.Vertex) []topology.NodeID {
	result := make([]topology.NodeID, 0, len(path))
	for _, v := range path {
		if len(result) > 0 && result[len(result)-1] == v.Node {
			continue
		}
		result = append(result, v.Node)
	}
	return result
}
