package baseline

import (
	"testing"

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

type selectFunc func(topology.View, common.Request, common.DelayModel) *Choice

func TestScenario(t *testing.T) {
	selectors := map[string]selectFunc{"CCN": Closest, "MPCN": MaxResidual}
	delay := common.DefaultDelayModel()

	for name, fn := range selectors {
		t.Run(name, func(t *testing.T) {
			topo := scenarioTopology(t)

			c := fn(topo, common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}, delay)
			require.True(t, c.Found(), "reason %q", c.Reason)
			assert.Equal(t, topology.NodeID(3), c.Node.ID)
			assert.InDelta(t, 5.0, c.Delay, 1e-9)
			assert.Equal(t, []topology.NodeID{1, 2, 3}, c.Path)

			tight := fn(topo, common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 1}, delay)
			assert.Equal(t, common.ReasonDelayExceeded, tight.Reason)

			require.NoError(t, topo.Consume(3, 4))
			again := fn(topo, common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}, delay)
			assert.Equal(t, common.ReasonNoCandidate, again.Reason)
		})
	}
}

func TestBandwidthFilterMakesCandidatesUnreachable(t *testing.T) {
	topo := scenarioTopology(t)
	c := Closest(topo, common.Request{Source: 1, Bandwidth: 500, Capacity: 4, MaxDelay: 10}, common.DefaultDelayModel())
	assert.Equal(t, common.ReasonUnreachable, c.Reason)
}

func TestRankings(t *testing.T) {
	topo, err := topology.New(
		[]topology.Node{
			{ID: 1},
			{ID: 2, IsComputing: true, Capacity: 20},
			{ID: 3, IsComputing: true, Capacity: 80},
			{ID: 4, IsComputing: true, Capacity: 80},
		},
		[]topology.Edge{
			{U: 1, V: 2, Bandwidth: 100, PropagationDelay: 1},
			{U: 1, V: 3, Bandwidth: 100, PropagationDelay: 4},
			{U: 1, V: 4, Bandwidth: 100, PropagationDelay: 3},
		},
		false,
	)
	require.NoError(t, err)
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 5, MaxDelay: 100}
	delay := common.DefaultDelayModel()

	assert.Equal(t, topology.NodeID(2), Closest(topo, req, delay).Node.ID)
	// 3 and 4 tie on residual, 4 is closer
	assert.Equal(t, topology.NodeID(4), MaxResidual(topo, req, delay).Node.ID)
}

func TestDirectedFeasibleGraph(t *testing.T) {
	topo, err := topology.New(
		[]topology.Node{{ID: 1}, {ID: 2, IsComputing: true, Capacity: 10}},
		[]topology.Edge{{U: 2, V: 1, Bandwidth: 100, PropagationDelay: 1}},
		true,
	)
	require.NoError(t, err)

	c := Closest(topo, common.Request{Source: 1, Bandwidth: 10, Capacity: 1, MaxDelay: 10}, common.DefaultDelayModel())
	assert.Equal(t, common.ReasonUnreachable, c.Reason)
}

func TestEqualDelayRoutesPickSmallestIDs(t *testing.T) {
	topo, err := topology.New(
		[]topology.Node{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5, IsComputing: true, Capacity: 10}},
		[]topology.Edge{
			{U: 1, V: 4, Bandwidth: 100, PropagationDelay: 1},
			{U: 1, V: 3, Bandwidth: 100, PropagationDelay: 1},
			{U: 1, V: 2, Bandwidth: 100, PropagationDelay: 1},
			{U: 4, V: 5, Bandwidth: 100, PropagationDelay: 1},
			{U: 3, V: 5, Bandwidth: 100, PropagationDelay: 1},
			{U: 2, V: 5, Bandwidth: 100, PropagationDelay: 1},
		},
		false,
	)
	require.NoError(t, err)
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 1, MaxDelay: 100}

	for i := 0; i < 20; i++ {
		candidates, fits := Candidates(topo, req)
		require.Equal(t, 1, fits)
		require.Len(t, candidates, 1)
		assert.Equal(t, []topology.NodeID{1, 2, 5}, candidates[0].Path)
		assert.Equal(t, 2.0, candidates[0].Propagation)
	}
}
