// SPDX-License-Identifier: MIT

package ph

import (
	"errors"
	"fmt"
)

var (
	// ErrNilProblem is returned when a nil problem is passed to an entry point.
	ErrNilProblem = errors.New("ph: problem is nil")

	// ErrOptionViolation is returned when an invalid Option is supplied.
	ErrOptionViolation = errors.New("ph: invalid option supplied")

	// ErrInvalidDistribution is returned when sampling weights are negative,
	// of the wrong length or do not sum to 1.
	ErrInvalidDistribution = errors.New("ph: invalid sampling distribution")

	// ErrInsufficientWorkers is returned by the parallel drivers when no worker
	// is available besides the coordinator.
	ErrInsufficientWorkers = errors.New("ph: at least one worker is required")

	// ErrInitFailed is returned when a scenario cannot be solved during the
	// initial sweep; no iterate exists yet to fall back to.
	ErrInitFailed = errors.New("ph: initial subproblem solve failed")

	// ErrWorkerPanic wraps a panic recovered inside a worker.
	ErrWorkerPanic = errors.New("ph: worker panicked")

	// ErrBadSolution is returned when a solver hands back a point of the wrong
	// length or with NaN/Inf entries.
	ErrBadSolution = errors.New("ph: malformed subproblem solution")

	// ErrDirectFailed is returned when the extensive-form backend does not reach optimality.
	ErrDirectFailed = errors.New("ph: direct solve failed")
)

// phErrorf prefixes err with the entry point name.
func phErrorf(op string, err error) error {
	return fmt.Errorf("ph.%s: %w", op, err)
}
