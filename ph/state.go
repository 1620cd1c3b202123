// SPDX-License-Identifier: MIT

package ph

import "time"

// State is the position of a driver in its lifecycle.
type State int

const (
	// StateInit is the initial sweep.
	StateInit State = iota
	// StateIterate is the main loop.
	StateIterate
	// StateConverged means the residual tolerances were met.
	StateConverged
	// StateMaxIter means the iteration budget was exhausted.
	StateMaxIter
	// StateTimeout means the wall-time budget was exhausted.
	StateTimeout
	// StateComputeTimeout means the computing-time budget was exhausted.
	StateComputeTimeout
	// StateCancelled means the caller's context was cancelled.
	StateCancelled
)

// String returns a snake_case name of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIterate:
		return "iterate"
	case StateConverged:
		return "converged"
	case StateMaxIter:
		return "max_iter"
	case StateTimeout:
		return "timeout"
	case StateComputeTimeout:
		return "compute_timeout"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further iteration may follow s.
func (s State) Terminal() bool { return s >= StateConverged }

// Budget bounds a run; zero fields are unlimited.
type Budget struct {
	MaxIter          int
	MaxTime          time.Duration
	MaxComputingTime time.Duration
}

// Progress is what the driver knows at an iteration boundary.
type Progress struct {
	Iteration int
	Elapsed   time.Duration
	Computing time.Duration
	Converged bool
	Cancelled bool
}

// ShouldContinue returns the next state and whether another iteration may run.
// Checks, in order: cancellation, convergence, iteration budget, wall time,
// computing time. A terminal state is sticky.
func ShouldContinue(s State, b Budget, p Progress) (State, bool) {
	if s.Terminal() {
		return s, false
	}
	switch {
	case p.Cancelled:
		return StateCancelled, false
	case p.Converged:
		return StateConverged, false
	case b.MaxIter > 0 && p.Iteration >= b.MaxIter:
		return StateMaxIter, false
	case b.MaxTime > 0 && p.Elapsed >= b.MaxTime:
		return StateTimeout, false
	case b.MaxComputingTime > 0 && p.Computing >= b.MaxComputingTime:
		return StateComputeTimeout, false
	default:
		return StateIterate, true
	}
}

// clock measures wall time since start and the part of it spent in excluded
// sections (logging, full projections for reporting).
type clock struct {
	start    time.Time
	overhead time.Duration
}

func startClock() *clock { return &clock{start: time.Now()} }

func (c *clock) elapsed() time.Duration { return time.Since(c.start) }

func (c *clock) computing() time.Duration { return c.elapsed() - c.overhead }

// exclude runs fn and books its duration as overhead.
func (c *clock) exclude(fn func()) {
	t := time.Now()
	fn()
	c.overhead += time.Since(t)
}
