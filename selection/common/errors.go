package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks malformed input; such requests are excluded from metrics.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyGraph is the marker returned by graph construction when no candidate vertex
	// or no arc satisfies the request thresholds.
	ErrEmptyGraph = errors.New("expansion graph is empty")

	// ErrExpansionTimeout reports that a request ran past its time budget.
	ErrExpansionTimeout = errors.New("expansion timed out")

	// ErrCacheConsistency is an internal invariant breach of the incremental expander.
	// It is always fatal to the run.
	ErrCacheConsistency = errors.New("cache consistency violation")

	// ErrForeignTopology is returned when a stateful selector is handed a topology it was not
	// created for.
	ErrForeignTopology = errors.New("selector bound to another topology")

	// ErrInvalidSolution marks a node returned by an external solver that breaks the request
	// constraints.
	ErrInvalidSolution = errors.New("solver returned an invalid node")

	// ErrSolverInfeasible is returned by external solvers that found no feasible node.
	ErrSolverInfeasible = errors.New("solver reported infeasible")
)

// IsFatal reports whether err must abort the whole run instead of being recorded.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCacheConsistency) ||
		errors.Is(err, ErrForeignTopology) ||
		errors.Is(err, ErrInvalidSolution)
}

// IsTimeout reports whether err is a per-request time budget overrun.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrExpansionTimeout)
}

// DeadlineError maps a context failure observed during graph work: an expired deadline is a
// per-request ExpansionTimeout, a cancellation is returned unchanged.
func DeadlineError(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrExpansionTimeout, err)
	}
	return err
}
