package common

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FeiLiu52/TVT-code/topology"
)

// Options carries algorithm parameters from the run configuration to a factory.
type Options struct {
	Granularity int           // capacity buckets per computing node (CPEG, CNE)
	Delay       DelayModel    // processing delay model shared by every algorithm
	TimeBudget  time.Duration // per-request deadline, 0 disables it
	Solver      SolveFunc     // external solver (MINLP)
}

// SolveFunc is the boundary to an external optimiser: it receives a read-only snapshot and
// returns the chosen node or ErrSolverInfeasible.
type SolveFunc func(ctx context.Context, snapshot topology.View, req Request) (topology.NodeID, error)

// Factory builds a selector for one run. Selectors with per-run state (CNE) are bound to the
// topology handed to the factory.
type Factory func(topo *topology.Topology, opts Options) (Selector, error)

// AlgorithmRegistry manages available selection algorithms
type AlgorithmRegistry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var globalRegistry = &AlgorithmRegistry{
	factories: make(map[string]Factory),
}

func NewRegistry() *AlgorithmRegistry {
	return &AlgorithmRegistry{factories: make(map[string]Factory)}
}

// Register registers a new algorithm with the given name
func (ar *AlgorithmRegistry) Register(name string, factory Factory) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	if _, exists := ar.factories[name]; exists {
		return fmt.Errorf("algorithm '%s' is already registered", name)
	}

	ar.factories[name] = factory
	return nil
}

// Get retrieves an algorithm by name
func (ar *AlgorithmRegistry) Get(name string) (Factory, error) {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	factory, exists := ar.factories[name]
	if !exists {
		return nil, fmt.Errorf("algorithm '%s' not found in registry", name)
	}

	return factory, nil
}

// List returns all registered algorithm names in sorted order
func (ar *AlgorithmRegistry) List() []string {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	names := make([]string, 0, len(ar.factories))
	for name := range ar.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// GetGlobalRegistry returns the global algorithm registry
func GetGlobalRegistry() *AlgorithmRegistry {
	return globalRegistry
}

// RegisterGlobal registers an algorithm in the global registry
func RegisterGlobal(name string, factory Factory) error {
	return globalRegistry.Register(name, factory)
}

// GetGlobal retrieves an algorithm from the global registry
func GetGlobal(name string) (Factory, error) {
	return globalRegistry.Get(name)
}

// ListGlobal returns all registered algorithms in the global registry
func ListGlobal() []string {
	return globalRegistry.List()
}
