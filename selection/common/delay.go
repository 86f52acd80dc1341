package common

// DefaultProcessingFactor is the processing delay of a fully loaded node.
const DefaultProcessingFactor = 10.0

// DelayModel converts the capacity level a node serves a request at into processing delay.
//
// Processing(capacity, level) = ProcessingFactor * (1 - level/capacity): an idle node adds no
// delay, a node served at a lower residual level adds more. The function is deterministic and
// non-increasing in level, which keeps every expanded-graph weight non-negative.
type DelayModel struct {
	ProcessingFactor float64
}

func DefaultDelayModel() DelayModel {
	return DelayModel{ProcessingFactor: DefaultProcessingFactor}
}

func (m DelayModel) Processing(capacity, level float64) float64 {
	if capacity <= 0 {
		return m.ProcessingFactor
	}
	if level > capacity {
		level = capacity
	}
	if level < 0 {
		level = 0
	}
	d := m.ProcessingFactor * (1 - level/capacity)
	if d < 0 {
		return 0
	}
	return d
}

// EndToEnd is the delay reported for a placement: route propagation plus processing at the
// node's current residual capacity.
func (m DelayModel) EndToEnd(propagation, capacity, residual float64) float64 {
	return propagation + m.Processing(capacity, residual)
}
