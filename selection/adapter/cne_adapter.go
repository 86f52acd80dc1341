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

// CNEAdapter patches one cached expansion graph across the request sequence of a run. It
// must only be used with the topology it was created for.
type CNEAdapter struct {
	expander *expansion.Expander
	budget   time.Duration
}

func NewCNEAdapter(topo *topology.Topology, opts common.Options) (*CNEAdapter, error) {
	expander, err := expansion.NewExpander(topo, expansion.Params{Granularity: opts.Granularity, Delay: opts.Delay})
	if err != nil {
		return nil, fmt.Errorf("CNE: %w", err)
	}
	log.Debugf("CNEAdapter initialized (L=%d, budget=%v)", opts.Granularity, opts.TimeBudget)
	return &CNEAdapter{expander: expander, budget: opts.TimeBudget}, nil
}

func (a *CNEAdapter) Name() string {
	return fmt.Sprintf("CNE-L%d", a.expander.Params().Granularity)
}

func (a *CNEAdapter) Select(ctx context.Context, topo *topology.Topology, req common.Request) (*common.Result, error) {
	if err := common.ValidateRequest(topo, req); err != nil {
		return nil, err
	}
	ctx, cancel := withBudget(ctx, a.budget)
	defer cancel()

	g, stats, err := a.expander.Expand(ctx, topo, req)
	return selectOnGraph(ctx, a.Name(), topo, req, g, stats, err, func(v expansion.Vertex) error {
		return a.expander.Validate(v, req.Capacity)
	})
}
