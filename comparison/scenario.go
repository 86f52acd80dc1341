package comparison

import (
	"fmt"
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// Scenario is a topology together with the ordered request stream replayed against it.
type Scenario struct {
	Name              string `json:"name" yaml:"name"`
	topology.Document `yaml:",inline"`
	Requests          []common.Request `json:"requests" yaml:"requests"`
}

// LoadScenario reads a YAML or JSON scenario file.
func LoadScenario(path string) (*Scenario, error) {
	var s Scenario
	if err := topology.DecodeFile(path, &s); err != nil {
		return nil, err
	}
	if len(s.Requests) == 0 {
		return nil, fmt.Errorf("scenario %s has no requests", path)
	}
	if s.Name == "" {
		s.Name = "scenario"
	}
	log.Infof("comparison.LoadScenario: %s, nodes=%d, edges=%d, requests=%d",
		path, len(s.Nodes), len(s.Edges), len(s.Requests))
	return &s, nil
}

// RequestParams bounds the randomly generated request thresholds.
type RequestParams struct {
	BandwidthMin float64
	BandwidthMax float64
	CapacityMin  float64
	CapacityMax  float64
	MaxDelayMin  float64
	MaxDelayMax  float64
}

// GenerateRequests draws count requests with uniformly chosen sources and thresholds.
func GenerateRequests(rng *rand.Rand, topo topology.View, p RequestParams, count int) []common.Request {
	nodes := topo.Nodes()
	if len(nodes) == 0 {
		return nil
	}
	reqs := make([]common.Request, count)
	for i := range reqs {
		reqs[i] = common.Request{
			Source:    nodes[rng.Intn(len(nodes))].ID,
			Bandwidth: between(rng, p.BandwidthMin, p.BandwidthMax),
			Capacity:  between(rng, p.CapacityMin, p.CapacityMax),
			MaxDelay:  between(rng, p.MaxDelayMin, p.MaxDelayMax),
		}
	}
	return reqs
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
