package common

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/FeiLiu52/TVT-code/topology"
)

// Request is a service request: find a computing node reachable from Source over links with
// at least Bandwidth, holding at least Capacity, within MaxDelay end to end.
type Request struct {
	Source    topology.NodeID `json:"source_node" yaml:"source_node"`
	Bandwidth float64         `json:"required_bandwidth" yaml:"required_bandwidth"`
	Capacity  float64         `json:"required_capacity" yaml:"required_capacity"`
	MaxDelay  float64         `json:"max_acceptable_delay" yaml:"max_acceptable_delay"`
}

// Outcome is the per-request result code.
type Outcome string

const (
	OutcomeSelected         Outcome = "selected"
	OutcomeNoFeasibleNode   Outcome = "no_feasible_node"
	OutcomeExpansionTimeout Outcome = "expansion_timeout"
)

// Reason refines OutcomeNoFeasibleNode.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonEmptyGraph    Reason = "empty_graph"    // expansion produced no candidate vertex or no arc
	ReasonNoCandidate   Reason = "no_candidate"   // no computing node with enough residual capacity
	ReasonUnreachable   Reason = "unreachable"    // candidates exist but none is reachable
	ReasonDelayExceeded Reason = "delay_exceeded" // reachable, but every path is over the delay bound
	ReasonInfeasible    Reason = "infeasible"     // external solver reported infeasibility
)

// GraphStats describes the expanded graph used to answer one request.
type GraphStats struct {
	Vertices       int
	Edges          int
	BucketVertices int
	Bytes          int64 // estimated memory held by the graph

	VerticesAdded   int
	VerticesRemoved int
	VerticesReused  int
	EdgesAdded      int
	EdgesRemoved    int
	EdgesReused     int

	ExpansionTime time.Duration
}

// Result is the outcome of one selector invocation.
type Result struct {
	Algorithm string
	Outcome   Outcome
	Reason    Reason
	Node      topology.NodeID   // valid only when Outcome is OutcomeSelected
	Bucket    int               // capacity bucket of the chosen expansion vertex, 0 otherwise
	Path      []topology.NodeID // source to Node; equal-delay routes resolve to the smallest ids
	Delay     float64
	Graph     *GraphStats // nil for selectors that do not expand the topology
}

func (r *Result) Selected() bool {
	return r != nil && r.Outcome == OutcomeSelected
}

// Code renders outcome and reason as a single output column value.
func (r *Result) Code() string {
	if r.Reason == ReasonNone {
		return string(r.Outcome)
	}
	return fmt.Sprintf("%s:%s", r.Outcome, r.Reason)
}

func NoFeasible(algorithm string, reason Reason) *Result {
	return &Result{Algorithm: algorithm, Outcome: OutcomeNoFeasibleNode, Reason: reason}
}

func TimedOut(algorithm string) *Result {
	return &Result{Algorithm: algorithm, Outcome: OutcomeExpansionTimeout}
}

// Selector picks a computing node for a request. The topology is passed on every call and
// is owned by the caller; a successful selection consumes capacity on it.
type Selector interface {
	Name() string
	Select(ctx context.Context, topo *topology.Topology, req Request) (*Result, error)
}

// ValidateRequest rejects malformed requests before any graph work.
func ValidateRequest(topo *topology.Topology, req Request) error {
	if !topo.HasNode(req.Source) {
		return fmt.Errorf("%w: unknown source node %d", ErrInvalidRequest, req.Source)
	}
	checks := []struct {
		name  string
		value float64
	}{
		{"required_bandwidth", req.Bandwidth},
		{"required_capacity", req.Capacity},
		{"max_acceptable_delay", req.MaxDelay},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || c.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidRequest, c.name, c.value)
		}
	}
	return nil
}
