package comparison

import (
	"fmt"
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/topology"
)

// Scale is one network size of a comparison.
type Scale struct {
	Name  string
	Nodes int
	Edges int
}

// JobParams drive random job generation.
type JobParams struct {
	Seed         int64
	Scales       []Scale
	RunsPerScale int
	Generator    topology.GeneratorParams // Nodes and Edges are taken from each scale
	Requests     RequestParams
	RequestCount int
}

// runSeed gives every (scale, run) pair its own reproducible stream.
func runSeed(seed int64, scale, run int) int64 {
	return seed + int64(scale)*100003 + int64(run)
}

// GenerateJobs builds RunsPerScale random topologies and request streams per scale.
func GenerateJobs(p JobParams) ([]Job, error) {
	var jobs []Job
	for si, scale := range p.Scales {
		gen := p.Generator
		gen.Nodes, gen.Edges = scale.Nodes, scale.Edges
		for run := 0; run < p.RunsPerScale; run++ {
			rng := rand.New(rand.NewSource(runSeed(p.Seed, si, run)))
			topo, err := topology.Generate(rng, gen)
			if err != nil {
				return nil, fmt.Errorf("scale %s run %d: %w", scale.Name, run, err)
			}
			jobs = append(jobs, Job{
				Scale:    scale.Name,
				Run:      run,
				Topology: topo,
				Requests: GenerateRequests(rng, topo, p.Requests, p.RequestCount),
			})
		}
		log.Infof("comparison.GenerateJobs: scale %s, %d runs generated", scale.Name, p.RunsPerScale)
	}
	return jobs, nil
}

// ScenarioJob turns a loaded scenario into a single job.
func ScenarioJob(s *Scenario) (Job, error) {
	topo, err := s.Build()
	if err != nil {
		return Job{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return Job{Scale: s.Name, Topology: topo, Requests: s.Requests}, nil
}
