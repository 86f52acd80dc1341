package shortest_path

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/selection/expansion"
	"github.com/FeiLiu52/TVT-code/topology"
)

func buildGraph(t *testing.T, nodes []topology.Node, edges []topology.Edge, req common.Request, l int) *expansion.Graph {
	t.Helper()
	topo, err := topology.New(nodes, edges, false)
	require.NoError(t, err)
	g, _, err := expansion.Build(context.Background(), topo, req, expansion.Params{Granularity: l, Delay: common.DefaultDelayModel()})
	if err != nil {
		require.True(t, errors.Is(err, common.ErrEmptyGraph), "unexpected error %v", err)
	}
	return g
}

var (
	scenarioNodes = []topology.Node{
		{ID: 1, IsComputing: true, Capacity: 10},
		{ID: 2},
		{ID: 3, IsComputing: true, Capacity: 5},
	}
	scenarioEdges = []topology.Edge{
		{U: 1, V: 2, Bandwidth: 100, PropagationDelay: 2},
		{U: 2, V: 3, Bandwidth: 100, PropagationDelay: 3},
	}
)

func TestSelectScenario(t *testing.T) {
	testCases := []struct {
		name     string
		maxDelay float64
		l        int
		reason   common.Reason
		node     topology.NodeID
		delay    float64
	}{
		{"selects C", 10, 10, common.ReasonNone, 3, 5},
		{"single bucket", 10, 1, common.ReasonNone, 3, 5},
		{"delay bound too tight", 1, 10, common.ReasonDelayExceeded, 0, 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: tc.maxDelay}
			g := buildGraph(t, scenarioNodes, scenarioEdges, req, tc.l)

			sel, err := Select(context.Background(), g, req)
			require.NoError(t, err)
			assert.Equal(t, tc.reason, sel.Reason)
			assert.Equal(t, tc.node, sel.Vertex.Node)
			assert.InDelta(t, tc.delay, sel.Delay, 1e-9)
			if sel.Found() {
				assert.Equal(t, []topology.NodeID{1, 2, 3}, sel.Path)
				assert.Equal(t, tc.l, sel.Vertex.Bucket)
			}
		})
	}
}

func TestSelectUnreachable(t *testing.T) {
	nodes := append(append([]topology.Node(nil), scenarioNodes...), topology.Node{ID: 4, IsComputing: true, Capacity: 50})
	// C is cut off by the bandwidth filter, D has no links at all
	edges := []topology.Edge{
		{U: 1, V: 2, Bandwidth: 100, PropagationDelay: 2},
		{U: 2, V: 3, Bandwidth: 5, PropagationDelay: 3},
	}
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}
	g := buildGraph(t, nodes, edges, req, 10)

	sel, err := Select(context.Background(), g, req)
	require.NoError(t, err)
	assert.Equal(t, common.ReasonUnreachable, sel.Reason)
}

func TestSelectTieBreaksOnLowestID(t *testing.T) {
	nodes := []topology.Node{
		{ID: 1},
		{ID: 5, IsComputing: true, Capacity: 10},
		{ID: 3, IsComputing: true, Capacity: 10},
	}
	edges := []topology.Edge{
		{U: 1, V: 5, Bandwidth: 100, PropagationDelay: 1},
		{U: 1, V: 3, Bandwidth: 100, PropagationDelay: 1},
	}
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}
	g := buildGraph(t, nodes, edges, req, 10)

	for i := 0; i < 20; i++ {
		sel, err := Select(context.Background(), g, req)
		require.NoError(t, err)
		assert.Equal(t, topology.NodeID(3), sel.Vertex.Node)
		assert.Equal(t, []topology.NodeID{1, 3}, sel.Path)
	}
}

func TestSelectPrefersLowerProcessingDelay(t *testing.T) {
	nodes := []topology.Node{
		{ID: 1},
		{ID: 2, IsComputing: true, Capacity: 10},
		{ID: 3, IsComputing: true, Capacity: 100},
	}
	edges := []topology.Edge{
		{U: 1, V: 2, Bandwidth: 100, PropagationDelay: 1},
		{U: 1, V: 3, Bandwidth: 100, PropagationDelay: 2},
	}
	topo, err := topology.New(nodes, edges, false)
	require.NoError(t, err)
	// node 2 at residual 5 pays 5 processing, node 3 idle pays 0
	require.NoError(t, topo.Consume(2, 5))

	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}
	g, _, err := expansion.Build(context.Background(), topo, req, expansion.Params{Granularity: 10, Delay: common.DefaultDelayModel()})
	require.NoError(t, err)

	sel, err := Select(context.Background(), g, req)
	require.NoError(t, err)
	assert.Equal(t, topology.NodeID(3), sel.Vertex.Node)
	assert.InDelta(t, 2.0, sel.Delay, 1e-9)
}

func TestSelectDeadline(t *testing.T) {
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}
	g := buildGraph(t, scenarioNodes, scenarioEdges, req, 10)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()
	_, err := Select(ctx, g, req)
	assert.True(t, errors.Is(err, common.ErrExpansionTimeout))
}
