package adapter

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/baseline"
	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// BaselineAdapter runs a greedy selector directly on the base topology.
type BaselineAdapter struct {
	name   string
	pick   func(topology.View, common.Request, common.DelayModel) *baseline.Choice
	delay  common.DelayModel
	budget time.Duration
}

func NewCCNAdapter(opts common.Options) *BaselineAdapter {
	return &BaselineAdapter{name: "CCN", pick: baseline.Closest, delay: opts.Delay, budget: opts.TimeBudget}
}

func NewMPCNAdapter(opts common.Options) *BaselineAdapter {
	return &BaselineAdapter{name: "MPCN", pick: baseline.MaxResidual, delay: opts.Delay, budget: opts.TimeBudget}
}

func (a *BaselineAdapter) Name() string { return a.name }

func (a *BaselineAdapter) Select(ctx context.Context, topo *topology.Topology, req common.Request) (*common.Result, error) {
	if err := common.ValidateRequest(topo, req); err != nil {
		return nil, err
	}
	ctx, cancel := withBudget(ctx, a.budget)
	defer cancel()

	choice := a.pick(topo, req, a.delay)
	// the gonum search is not interruptible; the deadline is checked once it returns
	if err := common.DeadlineError(ctx); err != nil {
		if common.IsTimeout(err) {
			return common.TimedOut(a.name), nil
		}
		return nil, err
	}

	if !choice.Found() {
		log.Debugf("%s: source=%d, no feasible node (%s)", a.name, req.Source, choice.Reason)
		return common.NoFeasible(a.name, choice.Reason), nil
	}
	if err := commit(topo, choice.Node.ID, req); err != nil {
		return nil, err
	}

	log.Debugf("%s: source=%d -> node=%d delay=%.4f path=%v", a.name, req.Source, choice.Node.ID, choice.Delay, choice.Path)
	return &common.Result{
		Algorithm: a.name,
		Outcome:   common.OutcomeSelected,
		Node:      choice.Node.ID,
		Path:      choice.Path,
		Delay:     choice.Delay,
	}, nil
}
