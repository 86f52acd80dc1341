package baseline

import (
	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// Closest picks the candidate with the shortest propagation delay path, ignoring processing
// delay; ties go to the lowest id.
func Closest(topo topology.View, req common.Request, delay common.DelayModel) *Choice {
	candidates, fits := Candidates(topo, req)
	return choose(candidates, fits, req, delay, func(a, b Candidate) bool {
		if a.Propagation != b.Propagation {
			return a.Propagation < b.Propagation
		}
		return a.Node.ID < b.Node.ID
	})
}
