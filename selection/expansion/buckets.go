package expansion

import (
	"math"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// BucketRange is an inclusive range of bucket indexes; Lo > Hi means empty.
type BucketRange struct {
	Lo, Hi int
}

var emptyRange = BucketRange{Lo: 1, Hi: 0}

func (r BucketRange) Empty() bool { return r.Lo > r.Hi }

func (r BucketRange) Contains(b int) bool { return b >= r.Lo && b <= r.Hi }

func (r BucketRange) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Hi - r.Lo + 1
}

// Params are the per-run expansion parameters.
type Params struct {
	Granularity int
	Delay       common.DelayModel
}

// ceilIndex is ceil with the capacity tolerance, so 4.0000000001 buckets round to 4.
func ceilIndex(x float64) int {
	i := int(math.Ceil(x - topology.CapacityEpsilon))
	if i < 1 {
		return 1
	}
	return i
}

// Buckets returns the feasible bucket range of a node for a required capacity. Bucket i of
// L covers ((i-1)w, i·w] with w = capacity/L; a bucket is feasible when its level, clipped
// to the residual, still holds required.
func Buckets(node topology.Node, residual, required float64, granularity int) BucketRange {
	if !node.IsComputing || granularity < 1 || !topology.Fits(residual, required) {
		return emptyRange
	}
	width := node.Capacity / float64(granularity)
	lo := ceilIndex(required / width)
	hi := ceilIndex(residual / width)
	if hi > granularity {
		hi = granularity
	}
	if hi < lo {
		// residual is within tolerance of required
		hi = lo
	}
	if lo > granularity {
		return emptyRange
	}
	return BucketRange{Lo: lo, Hi: hi}
}

// BucketLevel is the capacity level of bucket i, clipped to the residual.
func BucketLevel(node topology.Node, residual float64, granularity, bucket int) float64 {
	level := node.Capacity / float64(granularity) * float64(bucket)
	return math.Min(level, residual)
}

// computeWeight is the weight of the arc entering bucket vertex (node, bucket).
func (p Params) computeWeight(node topology.Node, residual float64, bucket int) float64 {
	return p.Delay.Processing(node.Capacity, BucketLevel(node, residual, p.Granularity, bucket))
}
