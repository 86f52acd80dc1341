package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/selection/expansion"
	"github.com/FeiLiu52/TVT-code/selection/shortest_path"
	"github.com/FeiLiu52/TVT-code/topology"
)

// withBudget derives the per-request deadline; a zero budget leaves ctx untouched.
func withBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}

// commit charges the chosen node. Selectors only pick nodes that fit, so a refusal here means
// the selector worked on stale state.
func commit(topo *topology.Topology, node topology.NodeID, req common.Request) error {
	if err := topo.Consume(node, req.Capacity); err != nil {
		return fmt.Errorf("%w: committing node %d: %v", common.ErrCacheConsistency, node, err)
	}
	return nil
}

// selectOnGraph finishes a request for the expansion based selectors: it maps the expansion
// error to an outcome, runs the shortest path search and commits the winner. validate, when
// set, is called on the chosen vertex before anything is committed.
func selectOnGraph(
	ctx context.Context,
	name string,
	topo *topology.Topology,
	req common.Request,
	g *expansion.Graph,
	stats common.GraphStats,
	expandErr error,
	validate func(v expansion.Vertex) error,
) (*common.Result, error) {
	switch {
	case errors.Is(expandErr, common.ErrExpansionTimeout):
		log.Warnf("%s: expansion timed out for source=%d after %v", name, req.Source, stats.ExpansionTime)
		res := common.TimedOut(name)
		res.Graph = &stats
		return res, nil
	case errors.Is(expandErr, common.ErrEmptyGraph):
		log.Debugf("%s: %v", name, expandErr)
		res := common.NoFeasible(name, common.ReasonEmptyGraph)
		res.Graph = &stats
		return res, nil
	case expandErr != nil:
		return nil, expandErr
	}

	sel, err := shortest_path.Select(ctx, g, req)
	if errors.Is(err, common.ErrExpansionTimeout) {
		log.Warnf("%s: path search timed out for source=%d", name, req.Source)
		res := common.TimedOut(name)
		res.Graph = &stats
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if !sel.Found() {
		res := common.NoFeasible(name, sel.Reason)
		res.Graph = &stats
		return res, nil
	}

	if validate != nil {
		if err := validate(sel.Vertex); err != nil {
			return nil, err
		}
	}
	if err := commit(topo, sel.Vertex.Node, req); err != nil {
		return nil, err
	}

	log.Debugf("%s: source=%d -> node=%d bucket=%d delay=%.4f path=%v",
		name, req.Source, sel.Vertex.Node, sel.Vertex.Bucket, sel.Delay, sel.Path)
	return &common.Result{
		Algorithm: name,
		Outcome:   common.OutcomeSelected,
		Node:      sel.Vertex.Node,
		Bucket:    sel.Vertex.Bucket,
		Path:      sel.Path,
		Delay:     sel.Delay,
		Graph:     &stats,
	}, nil
}
