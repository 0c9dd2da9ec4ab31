// Package domain holds types shared across the engine's modules.
package domain

import "errors"

// Error taxonomy for the analytics engine. Callers classify failures with
// errors.Is; the HTTP layer translates them to status codes.
var (
	// ErrInvalidInput marks malformed or out-of-domain input: empty returns
	// matrix, non-positive market caps, confidence outside its valid range.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfiguration marks a bad optimizer configuration, such as
	// risk budgets that do not sum to 1.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrConflictingConstraint marks mutually exclusive options both set.
	ErrConflictingConstraint = errors.New("conflicting constraints")

	// ErrOptimizationFailed marks solver non-convergence. The wrapped message
	// carries the solver's native diagnostic.
	ErrOptimizationFailed = errors.New("optimization did not converge")

	// ErrNumericalInstability marks a covariance matrix that cannot be made
	// positive-definite even after correction attempts.
	ErrNumericalInstability = errors.New("numerical instability")
)
