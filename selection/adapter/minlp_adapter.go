package adapter

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/selection/minlp"
	"github.com/FeiLiu52/TVT-code/topology"
)

// MINLPAdapter hands a read-only snapshot to an external solver and commits its answer after
// checking it against the request.
type MINLPAdapter struct {
	solve  common.SolveFunc
	delay  common.DelayModel
	budget time.Duration
}

// NewMINLPAdapter uses opts.Solver, falling back to the exhaustive reference solver.
func NewMINLPAdapter(opts common.Options) *MINLPAdapter {
	solve := opts.Solver
	if solve == nil {
		solve = minlp.Exhaustive(opts.Delay)
	}
	return &MINLPAdapter{solve: solve, delay: opts.Delay, budget: opts.TimeBudget}
}

func (a *MINLPAdapter) Name() string { return "MINLP" }

func (a *MINLPAdapter) Select(ctx context.Context, topo *topology.Topology, req common.Request) (*common.Result, error) {
	if err := common.ValidateRequest(topo, req); err != nil {
		return nil, err
	}
	ctx, cancel := withBudget(ctx, a.budget)
	defer cancel()

	snapshot := topo.Snapshot()
	id, err := a.solve(ctx, snapshot, req)
	switch {
	case errors.Is(err, common.ErrSolverInfeasible):
		log.Debugf("MINLP: source=%d: %v", req.Source, err)
		return common.NoFeasible(a.Name(), common.ReasonInfeasible), nil
	case common.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		log.Warnf("MINLP: solver timed out for source=%d", req.Source)
		return common.TimedOut(a.Name()), nil
	case err != nil:
		return nil, err
	}
	// an answer that arrives after the budget is discarded
	if err := common.DeadlineError(ctx); err != nil {
		if common.IsTimeout(err) {
			log.Warnf("MINLP: solver answered after the deadline for source=%d", req.Source)
			return common.TimedOut(a.Name()), nil
		}
		return nil, err
	}

	candidate, err := minlp.Verify(snapshot, req, id)
	if err != nil {
		return nil, err
	}
	if err := commit(topo, id, req); err != nil {
		return nil, err
	}

	d := a.delay.EndToEnd(candidate.Propagation, candidate.Node.Capacity, candidate.Node.Residual)
	log.Debugf("MINLP: source=%d -> node=%d delay=%.4f", req.Source, id, d)
	return &common.Result{
		Algorithm: a.Name(),
		Outcome:   common.OutcomeSelected,
		Node:      id,
		Path:      candidate.Path,
		Delay:     d,
	}, nil
}
