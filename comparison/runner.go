package comparison

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/metrics"
	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// expansionAlgorithms take a granularity and run once per configured L.
var expansionAlgorithms = map[string]bool{"CPEG": true, "CNE": true}

// Job is one run: a topology and the request stream every algorithm replays against its own
// copy of it.
type Job struct {
	Scale    string
	Run      int
	Topology *topology.Topology
	Requests []common.Request
}

type RunnerConfig struct {
	RunID         string
	Algorithms    []string
	Granularities []int
	Options       common.Options // Granularity is overridden per task
}

// Runner replays jobs for every configured algorithm. Each (job, algorithm) pair is a task
// with its own topology copy and selector; tasks run concurrently on the pool, requests
// inside a task run strictly in order.
type Runner struct {
	registry *common.AlgorithmRegistry
	recorder *metrics.Recorder
	pool     *ants.Pool
	config   RunnerConfig
}

func NewRunner(registry *common.AlgorithmRegistry, recorder *metrics.Recorder, pool *ants.Pool, config RunnerConfig) *Runner {
	return &Runner{registry: registry, recorder: recorder, pool: pool, config: config}
}

type task struct {
	job       Job
	algorithm string
	opts      common.Options
}

func (r *Runner) tasks(jobs []Job) ([]task, error) {
	var tasks []task
	for _, job := range jobs {
		for _, name := range r.config.Algorithms {
			if _, err := r.registry.Get(name); err != nil {
				return nil, err
			}
			granularities := []int{0}
			if expansionAlgorithms[name] {
				granularities = r.config.Granularities
			}
			for _, l := range granularities {
				opts := r.config.Options
				opts.Granularity = l
				tasks = append(tasks, task{job: job, algorithm: name, opts: opts})
			}
		}
	}
	return tasks, nil
}

// Run executes every task and returns the first fatal error, if any. A fatal error cancels
// the remaining tasks.
func (r *Runner) Run(ctx context.Context, jobs []Job) error {
	tasks, err := r.tasks(jobs)
	if err != nil {
		return err
	}
	log.Infof("Runner.Run: run %s, %d jobs, %d tasks", r.config.RunID, len(jobs), len(tasks))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, t := range tasks {
		t := t
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			if err := r.runTask(ctx, t); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit %s for %s run %d: %w", t.algorithm, t.job.Scale, t.job.Run, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	log.Infof("Runner.Run: run %s completed", r.config.RunID)
	return nil
}

func (r *Runner) runTask(ctx context.Context, t task) error {
	factory, err := r.registry.Get(t.algorithm)
	if err != nil {
		return err
	}
	topo := t.job.Topology.Clone()
	sel, err := factory(topo, t.opts)
	if err != nil {
		return fmt.Errorf("creating %s: %w", t.algorithm, err)
	}

	log.Debugf("Runner.runTask: %s on %s run %d, %d requests", sel.Name(), t.job.Scale, t.job.Run, len(t.job.Requests))
	for seq, req := range t.job.Requests {
		if err := ctx.Err(); err != nil {
			return err
		}
		tags := metrics.Tags{RunID: r.config.RunID, Scale: t.job.Scale, Run: t.job.Run, Sequence: seq}
		_, err := r.recorder.Observe(ctx, sel, topo, req, tags)
		switch {
		case err == nil:
		case errors.Is(err, common.ErrInvalidRequest):
			log.Warnf("Runner.runTask: %s skipping request %d of %s run %d: %v", sel.Name(), seq, t.job.Scale, t.job.Run, err)
		default:
			return fmt.Errorf("%s on %s run %d, request %d: %w", sel.Name(), t.job.Scale, t.job.Run, seq, err)
		}
	}
	return nil
}
