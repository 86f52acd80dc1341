package baseline

import (
	"math"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// MaxResidual picks the candidate with the most residual capacity; ties go to the shorter
// propagation delay path, then to the lowest id.
func MaxResidual(topo topology.View, req common.Request, delay common.DelayModel) *Choice {
	candidates, fits := Candidates(topo, req)
	return choose(candidates, fits, req, delay, func(a, b Candidate) bool {
		if math.Abs(a.Node.Residual-b.Node.Residual) > topology.CapacityEpsilon {
			return a.Node.Residual > b.Node.Residual
		}
		if a.Propagation != b.Propagation {
			return a.Propagation < b.Propagation
		}
		return a.Node.ID < b.Node.ID
	})
}
