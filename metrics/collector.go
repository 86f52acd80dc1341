package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector mirrors every recorded invocation into Prometheus metrics labeled by algorithm.
type Collector struct {
	Invocations   *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Delay         *prometheus.HistogramVec
	GraphVertices *prometheus.HistogramVec
	GraphEdges    *prometheus.HistogramVec
}

// NewCollector registers the selection metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	invocations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "selection_invocations_total",
		Help: "Selector invocations, labeled by algorithm and outcome.",
	}, []string{"algorithm", "outcome"}), "selection_invocations_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "selection_duration_seconds",
		Help:    "Wall clock time of one selector invocation.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12),
	}, []string{"algorithm"}), "selection_duration_seconds")
	if err != nil {
		return nil, err
	}

	delay, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "selection_end_to_end_delay",
		Help:    "End-to-end delay of successful selections.",
		Buckets: prometheus.LinearBuckets(0, 5, 20),
	}, []string{"algorithm"}), "selection_end_to_end_delay")
	if err != nil {
		return nil, err
	}

	vertices, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expansion_graph_vertices",
		Help:    "Vertex count of the expansion graph used by a request.",
		Buckets: prometheus.ExponentialBuckets(8, 4, 10),
	}, []string{"algorithm"}), "expansion_graph_vertices")
	if err != nil {
		return nil, err
	}

	edges, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expansion_graph_edges",
		Help:    "Edge count of the expansion graph used by a request.",
		Buckets: prometheus.ExponentialBuckets(8, 4, 10),
	}, []string{"algorithm"}), "expansion_graph_edges")
	if err != nil {
		return nil, err
	}

	return &Collector{
		Invocations:   invocations,
		Duration:      duration,
		Delay:         delay,
		GraphVertices: vertices,
		GraphEdges:    edges,
	}, nil
}

// Observe records one invocation.
func (c *Collector) Observe(rec Record) {
	if c == nil {
		return
	}
	c.Invocations.WithLabelValues(rec.Algorithm, string(rec.Outcome)).Inc()
	c.Duration.WithLabelValues(rec.Algorithm).Observe(rec.Elapsed.Seconds())
	if rec.Delay != nil {
		c.Delay.WithLabelValues(rec.Algorithm).Observe(*rec.Delay)
	}
	if rec.Vertices != nil {
		c.GraphVertices.WithLabelValues(rec.Algorithm).Observe(float64(*rec.Vertices))
	}
	if rec.Edges != nil {
		c.GraphEdges.WithLabelValues(rec.Algorithm).Observe(float64(*rec.Edges))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
