package expansion

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
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

func params(l int) Params {
	return Params{Granularity: l, Delay: common.DefaultDelayModel()}
}

func TestBuckets(t *testing.T) {
	node := topology.Node{ID: 1, IsComputing: true, Capacity: 10}
	testCases := []struct {
		name     string
		residual float64
		required float64
		l        int
		want     BucketRange
	}{
		{"idle node", 10, 4, 10, BucketRange{Lo: 4, Hi: 10}},
		{"partly used", 5, 4, 10, BucketRange{Lo: 4, Hi: 5}},
		{"fractional residual", 4.5, 4, 10, BucketRange{Lo: 4, Hi: 5}},
		{"exact fit", 4, 4, 10, BucketRange{Lo: 4, Hi: 4}},
		{"insufficient", 3, 4, 10, emptyRange},
		{"single bucket", 10, 4, 1, BucketRange{Lo: 1, Hi: 1}},
		{"coarse buckets", 7, 4, 2, BucketRange{Lo: 1, Hi: 2}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Buckets(node, tc.residual, tc.required, tc.l)
			if tc.want.Empty() {
				assert.True(t, got.Empty(), "got %v", got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}

	relay := topology.Node{ID: 2}
	assert.True(t, Buckets(relay, 0, 1, 10).Empty())
}

func TestBucketLevelIsClippedToResidual(t *testing.T) {
	node := topology.Node{ID: 1, IsComputing: true, Capacity: 10}
	assert.Equal(t, 4.0, BucketLevel(node, 4.5, 10, 4))
	assert.Equal(t, 4.5, BucketLevel(node, 4.5, 10, 5))
}

func TestBuildScenarioCounts(t *testing.T) {
	log.SetLevel(log.WarnLevel)
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}

	testCases := []struct {
		l        int
		vertices int
		buckets  int
		edges    int
	}{
		// A: buckets 4..10, C (w=0.5): buckets 8..10
		{10, 13, 10, 14},
		{1, 5, 2, 6},
	}
	for _, tc := range testCases {
		topo := scenarioTopology(t)
		g, stats, err := Build(context.Background(), topo, req, params(tc.l))
		require.NoError(t, err)
		assert.Equal(t, tc.vertices, stats.Vertices, "L=%d", tc.l)
		assert.Equal(t, tc.buckets, stats.BucketVertices, "L=%d", tc.l)
		assert.Equal(t, tc.edges, stats.Edges, "L=%d", tc.l)
		assert.Equal(t, stats.Vertices, stats.VerticesAdded)
		assert.Equal(t, g.VertexCount(), stats.Vertices)

		// processing delay at the top bucket is the delay at the full residual
		w, ok := g.ArcWeight(Transit(3), Vertex{Node: 3, Bucket: tc.l})
		require.True(t, ok)
		assert.Equal(t, 0.0, w)
	}
}

func TestBuildEmptyGraph(t *testing.T) {
	topo := scenarioTopology(t)

	// no link carries the bandwidth
	g, _, err := Build(context.Background(), topo, common.Request{Source: 1, Bandwidth: 1000, Capacity: 4, MaxDelay: 10}, params(10))
	assert.True(t, errors.Is(err, common.ErrEmptyGraph))
	require.NotNil(t, g)
	assert.Equal(t, 0, g.TransitArcCount())

	// only the source could host the request
	_, _, err = Build(context.Background(), topo, common.Request{Source: 1, Bandwidth: 10, Capacity: 8, MaxDelay: 10}, params(10))
	assert.True(t, errors.Is(err, common.ErrEmptyGraph))
}

func TestBuildDeadline(t *testing.T) {
	topo := scenarioTopology(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()

	g, _, err := Build(ctx, topo, common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}, params(10))
	assert.True(t, errors.Is(err, common.ErrExpansionTimeout))
	assert.Nil(t, g)
}

func TestRemoveVertexEvictsIncidentArcs(t *testing.T) {
	g := NewGraph()
	a, b, c := Transit(1), Transit(2), Vertex{Node: 2, Bucket: 3}
	g.AddVertex(a)
	g.AddVertex(b)
	g.AddVertex(c)
	g.AddArc(a, b, Arc{Weight: 1, Edge: 0})
	g.AddArc(b, a, Arc{Weight: 1, Edge: 0})
	g.AddArc(b, c, Arc{Weight: 2, Edge: computeArc})
	require.Equal(t, 3, g.EdgeCount())

	assert.Equal(t, 1, g.RemoveVertex(c))
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, 0, g.BucketVertexCount())
	assert.Equal(t, 2, g.RemoveVertex(a))
	assert.Equal(t, 0, g.EdgeCount())
	assert.Empty(t, g.Out(b))
}

func TestFootprintTracksGraphSize(t *testing.T) {
	g := NewGraph()
	empty := g.Footprint()
	assert.Positive(t, empty)

	a, b := Transit(1), Transit(2)
	g.AddVertex(a)
	g.AddVertex(b)
	withVertices := g.Footprint()
	assert.Greater(t, withVertices, empty)

	g.AddArc(a, b, Arc{Weight: 1, Edge: 0})
	assert.Greater(t, g.Footprint(), withVertices)

	g.RemoveVertex(b)
	g.RemoveVertex(a)
	assert.Equal(t, empty, g.Footprint())

	_, stats, err := Build(context.Background(), scenarioTopology(t), common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}, params(10))
	require.NoError(t, err)
	assert.Greater(t, stats.Bytes, empty)
}

func TestExpanderReuse(t *testing.T) {
	topo := scenarioTopology(t)
	e, err := NewExpander(topo, params(10))
	require.NoError(t, err)
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}

	_, first, err := e.Expand(context.Background(), topo, req)
	require.NoError(t, err)
	assert.Equal(t, first.Vertices, first.VerticesAdded)

	_, second, err := e.Expand(context.Background(), topo, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.VerticesAdded)
	assert.Equal(t, 0, second.EdgesAdded)
	assert.Equal(t, first.Vertices, second.VerticesReused)
	assert.Equal(t, first.Edges, second.EdgesReused)

	// C drops to residual 1: all its buckets become infeasible
	require.NoError(t, topo.Consume(3, 4))
	g, third, err := e.Expand(context.Background(), topo, req)
	assert.True(t, errors.Is(err, common.ErrEmptyGraph))
	assert.Equal(t, 3, third.VerticesRemoved)
	assert.Equal(t, 3, third.EdgesRemoved)
	assert.False(t, g.HasVertex(Vertex{Node: 3, Bucket: 10}))
}

func TestExpanderTimeoutInvalidatesCache(t *testing.T) {
	topo := scenarioTopology(t)
	e, err := NewExpander(topo, params(10))
	require.NoError(t, err)
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}

	_, _, err = e.Expand(context.Background(), topo, req)
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()
	_, _, err = e.Expand(ctx, topo, req)
	assert.True(t, errors.Is(err, common.ErrExpansionTimeout))

	_, stats, err := e.Expand(context.Background(), topo, req)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.VerticesReused)
	assert.Equal(t, stats.Vertices, stats.VerticesAdded)
}

func TestExpanderRejectsForeignTopology(t *testing.T) {
	topo := scenarioTopology(t)
	e, err := NewExpander(topo, params(10))
	require.NoError(t, err)

	_, _, err = e.Expand(context.Background(), topo.Clone(), common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10})
	assert.True(t, errors.Is(err, common.ErrForeignTopology))
	assert.True(t, common.IsFatal(err))
}

func TestExpanderValidateDetectsStaleVertex(t *testing.T) {
	topo := scenarioTopology(t)
	e, err := NewExpander(topo, params(10))
	require.NoError(t, err)
	req := common.Request{Source: 1, Bandwidth: 10, Capacity: 4, MaxDelay: 10}

	_, _, err = e.Expand(context.Background(), topo, req)
	require.NoError(t, err)
	require.NoError(t, e.Validate(Vertex{Node: 3, Bucket: 10}, req.Capacity))

	require.NoError(t, topo.Consume(3, 4))
	err = e.Validate(Vertex{Node: 3, Bucket: 10}, req.Capacity)
	assert.True(t, errors.Is(err, common.ErrCacheConsistency))
}

// TestExpanderMatchesBuild replays random request sequences and compares the patched graph
// with a from-scratch build after every request.
func TestExpanderMatchesBuild(t *testing.T) {
	log.SetLevel(log.WarnLevel)

	for _, seed := range []int64{1, 7, 42} {
		rng := rand.New(rand.NewSource(seed))
		topo, err := topology.Generate(rng, topology.DefaultGeneratorParams(30, 80))
		require.NoError(t, err)

		for _, l := range []int{1, 4, 10} {
			run := topo.Clone()
			e, err := NewExpander(run, params(l))
			require.NoError(t, err)
			computing := run.ComputingNodes()

			for i := 0; i < 40; i++ {
				req := common.Request{
					Source:    topology.NodeID(rng.Intn(30) + 1),
					Bandwidth: 500 + rng.Float64()*4000,
					Capacity:  float64(5000 + rng.Intn(4)*5000),
					MaxDelay:  50,
				}
				patched, patchedStats, patchedErr := e.Expand(context.Background(), run, req)
				built, builtStats, builtErr := Build(context.Background(), run, req, params(l))

				require.Equal(t, errors.Is(builtErr, common.ErrEmptyGraph), errors.Is(patchedErr, common.ErrEmptyGraph),
					"seed=%d L=%d request=%d", seed, l, i)
				assert.Equal(t, builtStats.Vertices, patchedStats.Vertices)
				assert.Equal(t, builtStats.Edges, patchedStats.Edges)
				if diff := cmp.Diff(built.Arcs(), patched.Arcs()); diff != "" {
					t.Fatalf("seed=%d L=%d request=%d: graphs differ (-built +patched):\n%s", seed, l, i, diff)
				}

				n := computing[rng.Intn(len(computing))]
				if topology.Fits(run.Residual(n.ID), req.Capacity) {
					require.NoError(t, run.Consume(n.ID, req.Capacity))
				}
			}
		}
	}
}
