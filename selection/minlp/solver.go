// Package minlp is the boundary to the mixed integer non-linear programming formulation of
// node selection. Production runs plug an external optimiser in through common.SolveFunc;
// Exhaustive is the local reference solver.
package minlp

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/baseline"
	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

const delayEpsilon = 1e-9

// Exhaustive returns a solver that evaluates every reachable, capacity-feasible node at its
// exact residual capacity and returns the one with minimal end-to-end delay within the
// bound; ties go to the lowest id. This is the continuous-capacity optimum the expansion
// graph converges to.
func Exhaustive(delay common.DelayModel) common.SolveFunc {
	return func(ctx context.Context, snapshot topology.View, req common.Request) (topology.NodeID, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		candidates, _ := baseline.Candidates(snapshot, req)

		var best topology.NodeID
		bestDelay := 0.0
		found := false
		for _, c := range candidates {
			d := delay.EndToEnd(c.Propagation, c.Node.Capacity, c.Node.Residual)
			if d > req.MaxDelay+delayEpsilon {
				continue
			}
			if !found || d < bestDelay-delayEpsilon {
				best, bestDelay, found = c.Node.ID, d, true
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: source %d, %d candidates", common.ErrSolverInfeasible, req.Source, len(candidates))
		}

		log.Debugf("minlp.Exhaustive: source=%d, node=%d, delay=%.4f", req.Source, best, bestDelay)
		return best, nil
	}
}

// Verify checks a node returned by a solver against the request constraints and returns the
// matching candidate.
func Verify(snapshot topology.View, req common.Request, id topology.NodeID) (baseline.Candidate, error) {
	n, ok := snapshot.Node(id)
	switch {
	case !ok:
		return baseline.Candidate{}, fmt.Errorf("%w: node %d does not exist", common.ErrInvalidSolution, id)
	case !n.IsComputing:
		return baseline.Candidate{}, fmt.Errorf("%w: node %d is not a computing node", common.ErrInvalidSolution, id)
	case id == req.Source:
		return baseline.Candidate{}, fmt.Errorf("%w: node %d is the request source", common.ErrInvalidSolution, id)
	case !topology.Fits(n.Residual, req.Capacity):
		return baseline.Candidate{}, fmt.Errorf("%w: node %d residual %.4f below %.4f", common.ErrInvalidSolution, id, n.Residual, req.Capacity)
	}

	candidates, _ := baseline.Candidates(snapshot, req)
	for _, c := range candidates {
		if c.Node.ID == id {
			return c, nil
		}
	}
	return baseline.Candidate{}, fmt.Errorf("%w: node %d is unreachable from %d", common.ErrInvalidSolution, id, req.Source)
}
