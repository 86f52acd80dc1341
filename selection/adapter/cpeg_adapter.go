package adapter

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/selection/expansion"
	"github.com/FeiLiu52/TVT-code/topology"
)

// CPEGAdapter builds a fresh expansion graph for every request.
type CPEGAdapter struct {
	params expansion.Params
	budget time.Duration
}

func NewCPEGAdapter(opts common.Options) (*CPEGAdapter, error) {
	if opts.Granularity < 1 {
		return nil, fmt.Errorf("CPEG: granularity must be at least 1, got %d", opts.Granularity)
	}
	log.Debugf("CPEGAdapter initialized (L=%d, budget=%v)", opts.Granularity, opts.TimeBudget)
	return &CPEGAdapter{
		params: expansion.Params{Granularity: opts.Granularity, Delay: opts.Delay},
		budget: opts.TimeBudget,
	}, nil
}

func (a *CPEGAdapter) Name() string {
	return fmt.Sprintf("CPEG-L%d", a.params.Granularity)
}

func (a *CPEGAdapter) Select(ctx context.Context, topo *topology.Topology, req common.Request) (*common.Result, error) {
	if err := common.ValidateRequest(topo, req); err != nil {
		return nil, err
	}
	ctx, cancel := withBudget(ctx, a.budget)
	defer cancel()

	g, stats, err := expansion.Build(ctx, topo, req, a.params)
	return selectOnGraph(ctx, a.Name(), topo, req, g, stats, err, nil)
}
