package adapter

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

func scenarioTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.New(
		[]topology.Node{
			{ID: 1, IsComputing: true, Capacity: 10},
			{ID: 2},
			{ID: 3, IsComputing: true, Capacity: 5},
		},
		[]topology.Edge{
			{U: 1, V: 2, Bandwidth: 100, PropagationDelay: 2},
			{U: 2, V: 3, Bandwidth: 100, PropagationDelay: 3},
		},
		false,
	)
	require.NoError(t, err)
	return topo
}

func options(l int) common.Options {
	return common.Options{Granularity: l, Delay: common.DefaultDelayModel()}
}

func newSelector(t *testing.T, name string, topo *topology.Topology, opts common.Options) common.Selector {
	t.Helper()
	factory, err := common.GetGlobal(name)
	require.NoError(t, err)
	sel, err := factory(topo, opts)
	require.NoError(t, err)
	return sel
}

var allAlgorithms = []string{"CPEG", "CNE", "CCN", "MPCN", "MINLP"}

func TestRegistered(t *testing.T) {
	for _, name := range allAlgorithms {
		_, err := common.GetGlobal(name)
		assert.NoError(t, err, name)
	}
}

func TestScenarioSelectAndExhaust(t *testing.T) {
	log.SetLevel(log.WarnLevel)
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}

	for _, name := range allAlgorithms {
		t.Run(name, func(t *testing.T) {
			topo := scenarioTopology(t)
			sel := newSelector(t, name, topo, options(10))

			res, err := sel.Select(context.Background(), topo, req)
			require.NoError(t, err)
			require.True(t, res.Selected(), "outcome %s", res.Code())
			assert.Equal(t, topology.NodeID(3), res.Node)
			assert.InDelta(t, 5.0, res.Delay, 1e-9)
			assert.Equal(t, []topology.NodeID{1, 2, 3}, res.Path)
			assert.InDelta(t, 1.0, topo.Residual(3), 1e-9)

			res, err = sel.Select(context.Background(), topo, req)
			require.NoError(t, err)
			assert.Equal(t, common.OutcomeNoFeasibleNode, res.Outcome)
			assert.InDelta(t, 1.0, topo.Residual(3), 1e-9)
			assert.InDelta(t, 10.0, topo.Residual(1), 1e-9)
		})
	}
}

func TestScenarioDelayExceeded(t *testing.T) {
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 1}
	want := map[string]common.Reason{
		"CPEG":  common.ReasonDelayExceeded,
		"CNE":   common.ReasonDelayExceeded,
		"CCN":   common.ReasonDelayExceeded,
		"MPCN":  common.ReasonDelayExceeded,
		"MINLP": common.ReasonInfeasible,
	}

	for name, reason := range want {
		t.Run(name, func(t *testing.T) {
			topo := scenarioTopology(t)
			res, err := newSelector(t, name, topo, options(10)).Select(context.Background(), topo, req)
			require.NoError(t, err)
			assert.Equal(t, common.OutcomeNoFeasibleNode, res.Outcome)
			assert.Equal(t, reason, res.Reason)
			assert.InDelta(t, 5.0, topo.Residual(3), 1e-9, "nothing is committed")
		})
	}
}

func TestScenarioGranularity(t *testing.T) {
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}
	results := map[int]*common.Result{}
	for _, l := range []int{1, 10} {
		topo := scenarioTopology(t)
		res, err := newSelector(t, "CPEG", topo, options(l)).Select(context.Background(), topo, req)
		require.NoError(t, err)
		require.True(t, res.Selected())
		results[l] = res
	}

	assert.Equal(t, results[1].Node, results[10].Node)
	assert.InDelta(t, results[1].Delay, results[10].Delay, 1e-9)
	assert.Equal(t, 5, results[1].Graph.Vertices)
	assert.Equal(t, 13, results[10].Graph.Vertices)
}

func TestInvalidRequest(t *testing.T) {
	bad := []common.Request{
		{Source: 9, Bandwidth: 10, Capacity: 4, MaxDelay: 10},
		{Source: 1, Bandwidth: 0, Capacity: 4, MaxDelay: 10},
		{Source: 1, Bandwidth: 10, Capacity: -4, MaxDelay: 10},
		{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 0},
	}
	for _, name := range allAlgorithms {
		topo := scenarioTopology(t)
		sel := newSelector(t, name, topo, options(10))
		for _, req := range bad {
			_, err := sel.Select(context.Background(), topo, req)
			assert.True(t, errors.Is(err, common.ErrInvalidRequest), "%s %+v: %v", name, req, err)
			assert.False(t, common.IsFatal(err))
		}
	}
}

func TestExpiredDeadline(t *testing.T) {
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}
	for _, name := range allAlgorithms {
		t.Run(name, func(t *testing.T) {
			topo := scenarioTopology(t)
			sel := newSelector(t, name, topo, options(10))

			ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
			defer cancel()
			res, err := sel.Select(ctx, topo, req)
			require.NoError(t, err)
			assert.Equal(t, common.OutcomeExpansionTimeout, res.Outcome)
			assert.InDelta(t, 5.0, topo.Residual(3), 1e-9)

			// the run continues with the next request
			res, err = sel.Select(context.Background(), topo, req)
			require.NoError(t, err)
			assert.True(t, res.Selected())
		})
	}
}

func TestCNEForeignTopologyIsFatal(t *testing.T) {
	topo := scenarioTopology(t)
	sel := newSelector(t, "CNE", topo, options(10))

	_, err := sel.Select(context.Background(), scenarioTopology(t), common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10})
	assert.True(t, errors.Is(err, common.ErrForeignTopology))
	assert.True(t, common.IsFatal(err))
}

func TestMINLPStubSolver(t *testing.T) {
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}
	testCases := []struct {
		name    string
		node    topology.NodeID
		err     error
		outcome common.Outcome
		fatal   bool
	}{
		{"valid answer", 3, nil, common.OutcomeSelected, false},
		{"infeasible", 0, common.ErrSolverInfeasible, common.OutcomeNoFeasibleNode, false},
		{"relay node", 2, nil, "", true},
		{"source node", 1, nil, "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			topo := scenarioTopology(t)
			opts := options(10)
			var seen topology.View
			opts.Solver = func(_ context.Context, snapshot topology.View, _ common.Request) (topology.NodeID, error) {
				seen = snapshot
				return tc.node, tc.err
			}

			res, err := NewMINLPAdapter(opts).Select(context.Background(), topo, req)
			require.NotNil(t, seen)
			if tc.fatal {
				assert.True(t, common.IsFatal(err), "got %v", err)
				assert.InDelta(t, 5.0, topo.Residual(3), 1e-9)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, res.Outcome)
		})
	}
}

func TestMINLPLateAnswerTimesOut(t *testing.T) {
	topo := scenarioTopology(t)
	opts := options(10)
	opts.TimeBudget = 5 * time.Millisecond
	opts.Solver = func(_ context.Context, _ topology.View, _ common.Request) (topology.NodeID, error) {
		time.Sleep(20 * time.Millisecond)
		return 3, nil
	}

	res, err := NewMINLPAdapter(opts).Select(context.Background(), topo, common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10})
	require.NoError(t, err)
	assert.Equal(t, common.OutcomeExpansionTimeout, res.Outcome)
	assert.InDelta(t, 5.0, topo.Residual(3), 1e-9)
}

func randomRequests(rng *rand.Rand, nodes, count int) []common.Request {
	reqs := make([]common.Request, count)
	for i := range reqs {
		reqs[i] = common.Request{
			Source:    topology.NodeID(rng.Intn(nodes) + 1),
			Bandwidth: 500 + rng.Float64()*4000,
			Capacity:  float64(5000 + rng.Intn(6)*5000),
			MaxDelay:  8 + rng.Float64()*20,
		}
	}
	return reqs
}

type outcome struct {
	Code  string
	Node  topology.NodeID
	Delay float64
}

func replay(t *testing.T, name string, topo *topology.Topology, opts common.Options, reqs []common.Request) ([]outcome, []*common.Result) {
	t.Helper()
	sel := newSelector(t, name, topo, opts)
	outcomes := make([]outcome, 0, len(reqs))
	results := make([]*common.Result, 0, len(reqs))
	for _, req := range reqs {
		res, err := sel.Select(context.Background(), topo, req)
		require.NoError(t, err)
		outcomes = append(outcomes, outcome{Code: res.Code(), Node: res.Node, Delay: res.Delay})
		results = append(results, res)
	}
	return outcomes, results
}

func TestCPEGAndCNEAgree(t *testing.T) {
	log.SetLevel(log.WarnLevel)
	for _, seed := range []int64{3, 11, 2024} {
		rng := rand.New(rand.NewSource(seed))
		base, err := topology.Generate(rng, topology.DefaultGeneratorParams(40, 120))
		require.NoError(t, err)
		reqs := randomRequests(rng, 40, 60)

		for _, l := range []int{1, 5, 20} {
			full, fullResults := replay(t, "CPEG", base.Clone(), options(l), reqs)
			incremental, incResults := replay(t, "CNE", base.Clone(), options(l), reqs)

			if diff := cmp.Diff(full, incremental); diff != "" {
				t.Fatalf("seed=%d L=%d: CPEG and CNE disagree (-CPEG +CNE):\n%s", seed, l, diff)
			}
			for i := range fullResults {
				assert.Equal(t, fullResults[i].Graph.Vertices, incResults[i].Graph.Vertices)
				assert.Equal(t, fullResults[i].Graph.Edges, incResults[i].Graph.Edges)
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	base, err := topology.Generate(rng, topology.DefaultGeneratorParams(30, 90))
	require.NoError(t, err)
	reqs := randomRequests(rng, 30, 40)

	ignore := cmpopts.IgnoreFields(common.GraphStats{}, "ExpansionTime")
	for _, name := range allAlgorithms {
		_, first := replay(t, name, base.Clone(), options(8), reqs)
		_, second := replay(t, name, base.Clone(), options(8), reqs)
		if diff := cmp.Diff(first, second, ignore); diff != "" {
			t.Errorf("%s is not deterministic:\n%s", name, diff)
		}
	}
}

func TestCapacityConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	base, err := topology.Generate(rng, topology.DefaultGeneratorParams(25, 70))
	require.NoError(t, err)
	reqs := randomRequests(rng, 25, 200)

	for _, name := range allAlgorithms {
		topo := base.Clone()
		_, results := replay(t, name, topo, options(10), reqs)

		consumed := map[topology.NodeID]float64{}
		for i, res := range results {
			if res.Selected() {
				consumed[res.Node] += reqs[i].Capacity
			}
		}
		for _, n := range topo.Nodes() {
			assert.LessOrEqual(t, consumed[n.ID], n.Capacity+topology.CapacityEpsilon, "%s node %d", name, n.ID)
			assert.InDelta(t, n.Capacity-consumed[n.ID], n.Residual, 1e-6, "%s node %d", name, n.ID)
			assert.GreaterOrEqual(t, n.Residual, 0.0)
		}
	}
}

// TestGranularityFidelity checks that finer buckets never find a worse delay and that the
// result matches the exact-capacity optimum.
func TestGranularityFidelity(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	base, err := topology.Generate(rng, topology.DefaultGeneratorParams(30, 90))
	require.NoError(t, err)
	// spread residual capacities before probing
	for _, n := range base.ComputingNodes() {
		require.NoError(t, base.Consume(n.ID, rng.Float64()*n.Capacity*0.8))
	}

	for _, req := range randomRequests(rng, 30, 25) {
		req.MaxDelay = 1000
		exact, err := replayOne(t, "MINLP", base.Clone(), options(1), req)
		require.NoError(t, err)

		prev := -1.0
		for _, l := range []int{1, 2, 5, 10, 50} {
			res, err := replayOne(t, "CPEG", base.Clone(), options(l), req)
			require.NoError(t, err)
			require.Equal(t, exact.Selected(), res.Selected(), "L=%d request %+v", l, req)
			if !res.Selected() {
				continue
			}
			if prev >= 0 {
				assert.LessOrEqual(t, res.Delay, prev+1e-9)
			}
			prev = res.Delay
			assert.InDelta(t, exact.Delay, res.Delay, 1e-6, "L=%d", l)
		}
	}
}

func replayOne(t *testing.T, name string, topo *topology.Topology, opts common.Options, req common.Request) (*common.Result, error) {
	t.Helper()
	return newSelector(t, name, topo, opts).Select(context.Background(), topo, req)
}
