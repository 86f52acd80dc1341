package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// Tags locate an invocation inside a comparison.
type Tags struct {
	RunID    string
	Scale    string
	Run      int
	Sequence int
}

// Record is one selector invocation. Pointer fields are null when they do not apply: Node and
// Delay without a selection, Vertices/Edges/ExpansionTime/GraphMB for selectors that do not
// expand the topology. GraphMB is the estimated size of the expanded graph; ProcessRSSMB is
// the resident set of the whole process right after the call and is only attributable to the
// row when tasks run one at a time.
type Record struct {
	Tags
	Algorithm     string
	Node          *topology.NodeID
	Delay         *float64
	Elapsed       time.Duration
	Vertices      *int
	Edges         *int
	ExpansionTime *time.Duration
	Outcome       common.Outcome
	Reason        common.Reason
	GraphMB       *float64
	ProcessRSSMB  float64
}

// Code renders outcome and reason as one column value.
func (r Record) Code() string {
	return (&common.Result{Outcome: r.Outcome, Reason: r.Reason}).Code()
}

// NewRecord converts a selector result.
func NewRecord(tags Tags, res *common.Result, elapsed time.Duration) Record {
	rec := Record{
		Tags:      tags,
		Algorithm: res.Algorithm,
		Elapsed:   elapsed,
		Outcome:   res.Outcome,
		Reason:    res.Reason,
	}
	if res.Selected() {
		node, delay := res.Node, res.Delay
		rec.Node = &node
		rec.Delay = &delay
	}
	if res.Graph != nil {
		vertices, edges, expansion := res.Graph.Vertices, res.Graph.Edges, res.Graph.ExpansionTime
		graphMB := float64(res.Graph.Bytes) / bytesPerMB
		rec.Vertices = &vertices
		rec.Edges = &edges
		rec.ExpansionTime = &expansion
		rec.GraphMB = &graphMB
	}
	return rec
}

// Recorder wraps selector invocations and keeps one record per invocation. It is safe for use
// by concurrent runs.
type Recorder struct {
	mu        sync.Mutex
	records   []Record
	sampler   MemorySampler
	collector *Collector
}

// NewRecorder creates a recorder; sampler and collector are optional.
func NewRecorder(sampler MemorySampler, collector *Collector) *Recorder {
	return &Recorder{sampler: sampler, collector: collector}
}

// Observe runs one selection and records it. Errors are returned without a record: invalid
// requests are excluded from the metrics and fatal errors end the run.
func (r *Recorder) Observe(ctx context.Context, sel common.Selector, topo *topology.Topology, req common.Request, tags Tags) (*common.Result, error) {
	start := time.Now()
	res, err := sel.Select(ctx, topo, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	rec := NewRecord(tags, res, elapsed)
	if r.sampler != nil {
		if mb, err := r.sampler.SampleMB(); err == nil {
			rec.ProcessRSSMB = mb
		} else {
			log.Debugf("Recorder.Observe: memory sample failed: %v", err)
		}
	}
	r.Append(rec)
	return res, nil
}

func (r *Recorder) Append(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	r.collector.Observe(rec)
}

// Records returns a copy of all records ordered by scale, run, algorithm and sequence.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	result := append([]Record(nil), r.records...)
	r.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Scale != b.Scale {
			return a.Scale < b.Scale
		}
		if a.Run != b.Run {
			return a.Run < b.Run
		}
		if a.Algorithm != b.Algorithm {
			return a.Algorithm < b.Algorithm
		}
		return a.Sequence < b.Sequence
	})
	return result
}

// Stat is a mean and a sample variance.
type Stat struct {
	Mean     float64
	Variance float64
}

func newStat(xs []float64) Stat {
	switch len(xs) {
	case 0:
		return Stat{}
	case 1:
		return Stat{Mean: xs[0]}
	}
	mean, variance := stat.MeanVariance(xs, nil)
	return Stat{Mean: mean, Variance: variance}
}

// Summary aggregates the records of one algorithm at one scale.
type Summary struct {
	Scale       string
	Algorithm   string
	Invocations int
	Selected    int
	NoFeasible  int
	Timeouts    int
	SuccessRate float64

	Delay         Stat // over selected requests
	ElapsedMS     Stat
	Vertices      Stat // over requests with an expansion graph
	Edges         Stat
	ExpansionMS   Stat
	GraphMB       Stat
	ProcessRSSMB  Stat
	ValidRuns     int // runs that produced at least one selection
	TotalRuns     int
	ReasonsByCode map[string]int

	// DelayGap is the delay above the MINLP delay for the same request, over requests both
	// selected a node for. DelayGapSamples is zero when MINLP did not run.
	DelayGap        Stat
	DelayGapSamples int
}

// Finalize computes mean and variance per algorithm and scale across the recorded sequence.
func (r *Recorder) Finalize() []Summary {
	type key struct{ scale, algorithm string }
	type acc struct {
		summary                                                Summary
		delay, elapsed, vertices, edges, expansion, graph, rss []float64
		gaps                                                   []float64
		runs, validRuns                                        map[int]bool
	}

	records := r.Records()
	exact := exactDelays(records)

	groups := make(map[key]*acc)
	var keys []key
	for _, rec := range records {
		k := key{rec.Scale, rec.Algorithm}
		a, ok := groups[k]
		if !ok {
			a = &acc{
				summary:   Summary{Scale: rec.Scale, Algorithm: rec.Algorithm, ReasonsByCode: map[string]int{}},
				runs:      map[int]bool{},
				validRuns: map[int]bool{},
			}
			groups[k] = a
			keys = append(keys, k)
		}

		a.summary.Invocations++
		a.summary.ReasonsByCode[rec.Code()]++
		a.runs[rec.Run] = true
		switch rec.Outcome {
		case common.OutcomeSelected:
			a.summary.Selected++
			a.validRuns[rec.Run] = true
		case common.OutcomeNoFeasibleNode:
			a.summary.NoFeasible++
		case common.OutcomeExpansionTimeout:
			a.summary.Timeouts++
		}

		if rec.Delay != nil {
			a.delay = append(a.delay, *rec.Delay)
			if d, ok := exact[requestKey{rec.Scale, rec.Run, rec.Sequence}]; ok {
				a.gaps = append(a.gaps, *rec.Delay-d)
			}
		}
		a.elapsed = append(a.elapsed, durationMS(rec.Elapsed))
		if rec.Vertices != nil {
			a.vertices = append(a.vertices, float64(*rec.Vertices))
			a.edges = append(a.edges, float64(*rec.Edges))
		}
		if rec.ExpansionTime != nil {
			a.expansion = append(a.expansion, durationMS(*rec.ExpansionTime))
		}
		if rec.GraphMB != nil {
			a.graph = append(a.graph, *rec.GraphMB)
		}
		a.rss = append(a.rss, rec.ProcessRSSMB)
	}

	result := make([]Summary, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		s := a.summary
		if s.Invocations > 0 {
			s.SuccessRate = float64(s.Selected) / float64(s.Invocations)
		}
		s.Delay = newStat(a.delay)
		s.ElapsedMS = newStat(a.elapsed)
		s.Vertices = newStat(a.vertices)
		s.Edges = newStat(a.edges)
		s.ExpansionMS = newStat(a.expansion)
		s.GraphMB = newStat(a.graph)
		s.ProcessRSSMB = newStat(a.rss)
		s.DelayGap = newStat(a.gaps)
		s.DelayGapSamples = len(a.gaps)
		s.TotalRuns = len(a.runs)
		s.ValidRuns = len(a.validRuns)
		result = append(result, s)
	}
	return result
}

// ExactAlgorithm is the selector whose delays are the reference for DelayGap.
const ExactAlgorithm = "MINLP"

type requestKey struct {
	scale    string
	run      int
	sequence int
}

// exactDelays indexes the delays of the requests the exact selector served.
func exactDelays(records []Record) map[requestKey]float64 {
	result := make(map[requestKey]float64)
	for _, rec := range records {
		if rec.Algorithm == ExactAlgorithm && rec.Delay != nil {
			result[requestKey{rec.Scale, rec.Run, rec.Sequence}] = *rec.Delay
		}
	}
	return result
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
