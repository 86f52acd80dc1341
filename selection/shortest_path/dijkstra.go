package shortest_path

import (
	"container/heap"
	"context"
	"math"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/selection/expansion"
)

// deadlineStride is how many vertex settlements run between two deadline checks.
const deadlineStride = 1024

// Tree is a shortest path tree rooted at one expansion vertex.
type Tree struct {
	root expansion.Vertex
	dist map[expansion.Vertex]float64
	pred map[expansion.Vertex]expansion.Vertex
}

// Distance returns the shortest distance to v, +Inf when unreachable.
func (t *Tree) Distance(v expansion.Vertex) float64 {
	if d, ok := t.dist[v]; ok {
		return d
	}
	return math.Inf(1)
}

func (t *Tree) Reachable(v expansion.Vertex) bool {
	_, ok := t.dist[v]
	return ok
}

// PathTo returns the vertices from the root to v, nil when v is unreachable.
func (t *Tree) PathTo(v expansion.Vertex) []expansion.Vertex {
	if !t.Reachable(v) {
		return nil
	}
	var reversed []expansion.Vertex
	for cur := v; ; {
		reversed = append(reversed, cur)
		if cur == t.root {
			break
		}
		cur = t.pred[cur]
	}
	path := make([]expansion.Vertex, len(reversed))
	for i, vertex := range reversed {
		path[len(reversed)-1-i] = vertex
	}
	return path
}

type item struct {
	vertex expansion.Vertex
	dist   float64
}

// vertexHeap pops by distance, then by vertex order, so settlement order never depends on
// map iteration.
type vertexHeap []item

func (h vertexHeap) Len() int { return len(h) }
func (h vertexHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].vertex.Less(h[j].vertex)
}
func (h vertexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *vertexHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *vertexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Dijkstra computes shortest distances from root over non-negative arc weights. Among equal
// distance predecessors the smaller vertex wins.
func Dijkstra(ctx context.Context, g *expansion.Graph, root expansion.Vertex) (*Tree, error) {
	t := &Tree{
		root: root,
		dist: make(map[expansion.Vertex]float64),
		pred: make(map[expansion.Vertex]expansion.Vertex),
	}
	if !g.HasVertex(root) {
		return t, nil
	}

	settled := make(map[expansion.Vertex]bool)
	t.dist[root] = 0
	h := &vertexHeap{{vertex: root}}
	steps := 0

	for h.Len() > 0 {
		it := heap.Pop(h).(item)
		if settled[it.vertex] || it.dist > t.dist[it.vertex] {
			continue
		}
		settled[it.vertex] = true

		if steps++; steps%deadlineStride == 0 {
			if err := common.DeadlineError(ctx); err != nil {
				return nil, err
			}
		}

		for next, arc := range g.Out(it.vertex) {
			if settled[next] {
				continue
			}
			nd := it.dist + arc.Weight
			cur, seen := t.dist[next]
			switch {
			case !seen || nd < cur:
				t.dist[next] = nd
				t.pred[next] = it.vertex
				heap.Push(h, item{vertex: next, dist: nd})
			case nd == cur && it.vertex.Less(t.pred[next]):
				t.pred[next] = it.vertex
			}
		}
	}

	if err := common.DeadlineError(ctx); err != nil {
		return nil, err
	}
	return t, nil
}
