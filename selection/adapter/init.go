package adapter

import (
	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

// init automatically registers available selection algorithms
func init() {
	factories := map[string]common.Factory{
		"CPEG": func(_ *topology.Topology, opts common.Options) (common.Selector, error) {
			a, err := NewCPEGAdapter(opts)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		"CNE": func(topo *topology.Topology, opts common.Options) (common.Selector, error) {
			a, err := NewCNEAdapter(topo, opts)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		"CCN": func(_ *topology.Topology, opts common.Options) (common.Selector, error) {
			return NewCCNAdapter(opts), nil
		},
		"MPCN": func(_ *topology.Topology, opts common.Options) (common.Selector, error) {
			return NewMPCNAdapter(opts), nil
		},
		"MINLP": func(_ *topology.Topology, opts common.Options) (common.Selector, error) {
			return NewMINLPAdapter(opts), nil
		},
	}

	for name, factory := range factories {
		if err := common.RegisterGlobal(name, factory); err != nil {
			log.Warnf("Failed to register %s selector: %v", name, err)
		}
	}

	log.Debugf("Available selection algorithms: %v", common.ListGlobal())
}
