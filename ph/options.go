// SPDX-License-Identifier: MIT

package ph

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/katalvlaran/phedge/history"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/qp"
	"github.com/katalvlaran/phedge/subproblem"
)

// Backend selects the solver used by SolveDirect.
type Backend int

const (
	// BackendAuto uses BackendSimplex for linear objectives and BackendQP otherwise.
	BackendAuto Backend = iota
	// BackendSimplex solves the extensive form as an LP.
	BackendSimplex
	// BackendQP solves the extensive form with the ADMM QP solver.
	BackendQP
)

// String returns the backend name used in logs and configuration.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendSimplex:
		return "simplex"
	case BackendQP:
		return "qp"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend maps "", "auto", "simplex" and "qp" to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "", "auto":
		return BackendAuto, nil
	case "simplex":
		return BackendSimplex, nil
	case "qp":
		return BackendQP, nil
	default:
		return BackendAuto, violation("unknown backend %q", name)
	}
}

// Option configures a solve via functional arguments. Invalid values are
// recorded and surfaced as ErrOptionViolation when the solve starts.
type Option func(*Options)

// Options holds every tunable of the drivers. Each driver reads the subset it needs.
type Options struct {
	// Mu is the proximal parameter μ > 0.
	Mu float64

	// EpsPrimal and EpsDual are the PH residual tolerances.
	EpsPrimal, EpsDual float64

	// MaxIter, MaxTime and MaxComputingTime are the budgets; 0 means unlimited.
	MaxIter          int
	MaxTime          time.Duration
	MaxComputingTime time.Duration

	// PrintLevel is 0 (silent), 1 (progress) or 2 (per-solve debug).
	PrintLevel int
	// PrintStep is the number of iterations between two log events.
	PrintStep int

	// Seed drives scenario sampling; 0 selects a fixed default seed.
	Seed int64
	// Distribution is the scenario sampling law of the randomized drivers.
	Distribution Distribution

	// C is the relaxation of the parallel and asynchronous updates, in (0, 2).
	C float64
	// StepSize > 0 fixes the asynchronous step; 0 selects the delay-adaptive rule.
	StepSize float64

	// Workers is the pool size when Executors is empty.
	Workers int
	// Executors, when set, are the per-worker solvers (one goroutine each).
	Executors []subproblem.Solver
	// Solver is the local subproblem solver; nil builds a subproblem.QPSolver.
	Solver subproblem.Solver

	// History, when set, receives one entry per log event.
	History *history.History
	// Observers are notified on init, log events and termination.
	Observers []Observer

	// Logger receives driver logs; PrintLevel decides what is emitted.
	Logger *slog.Logger

	// Backend and QP configure SolveDirect and the default QPSolver.
	Backend Backend
	QP      qp.Options

	err error
}

// DefaultOptions returns the defaults:
//   - μ = 3, ε_primal = ε_dual = 1e-3;
//   - at most 1000 iterations and one hour, unlimited computing time;
//   - PrintLevel 1, PrintStep 1, Seed 0, proportional sampling;
//   - C = 0.9, adaptive asynchronous step, GOMAXPROCS-1 workers;
//   - automatic direct backend, qp.DefaultOptions().
func DefaultOptions() Options {
	return Options{
		Mu:           3,
		EpsPrimal:    1e-3,
		EpsDual:      1e-3,
		MaxIter:      1000,
		MaxTime:      time.Hour,
		PrintLevel:   1,
		PrintStep:    1,
		Distribution: Proportional(),
		C:            0.9,
		Workers:      runtime.GOMAXPROCS(0) - 1,
		Logger:       slog.Default().With("component", "ph"),
		Backend:      BackendAuto,
		QP:           qp.DefaultOptions(),
	}
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrOptionViolation}, args...)...)
}

// WithMu sets the proximal parameter; μ must be positive and finite.
func WithMu(mu float64) Option {
	return func(o *Options) {
		if !(mu > 0) || math.IsInf(mu, 1) {
			o.err = violation("Mu must be positive and finite (%g)", mu)
			return
		}
		o.Mu = mu
	}
}

// WithEpsilon sets the primal and dual residual tolerances (non-negative).
func WithEpsilon(primal, dual float64) Option {
	return func(o *Options) {
		if !(primal >= 0) || !(dual >= 0) {
			o.err = violation("tolerances cannot be negative (%g, %g)", primal, dual)
			return
		}
		o.EpsPrimal, o.EpsDual = primal, dual
	}
}

// WithMaxIter caps the number of iterations; 0 means unlimited.
func WithMaxIter(n int) Option {
	return func(o *Options) {
		if n < 0 {
			o.err = violation("MaxIter cannot be negative (%d)", n)
			return
		}
		o.MaxIter = n
	}
}

// WithMaxTime caps the wall time; 0 means unlimited.
func WithMaxTime(d time.Duration) Option {
	return func(o *Options) {
		if d < 0 {
			o.err = violation("MaxTime cannot be negative (%s)", d)
			return
		}
		o.MaxTime = d
	}
}

// WithMaxComputingTime caps the wall time spent outside logging; 0 means unlimited.
func WithMaxComputingTime(d time.Duration) Option {
	return func(o *Options) {
		if d < 0 {
			o.err = violation("MaxComputingTime cannot be negative (%s)", d)
			return
		}
		o.MaxComputingTime = d
	}
}

// WithPrintLevel sets the verbosity (0, 1 or 2).
func WithPrintLevel(level int) Option {
	return func(o *Options) {
		if level < 0 || level > 2 {
			o.err = violation("PrintLevel must be 0, 1 or 2 (%d)", level)
			return
		}
		o.PrintLevel = level
	}
}

// WithPrintStep sets the number of iterations between log events (>= 1).
func WithPrintStep(step int) Option {
	return func(o *Options) {
		if step < 1 {
			o.err = violation("PrintStep must be at least 1 (%d)", step)
			return
		}
		o.PrintStep = step
	}
}

// WithSeed sets the sampling seed.
func WithSeed(seed int64) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithDistribution sets the scenario sampling law. Weights are checked
// against the problem when the solve starts (ErrInvalidDistribution).
func WithDistribution(d Distribution) Option {
	return func(o *Options) { o.Distribution = d }
}

// WithC sets the relaxation parameter, in (0, 2).
func WithC(c float64) Option {
	return func(o *Options) {
		if !(c > 0 && c < 2) {
			o.err = violation("C must lie in (0, 2) (%g)", c)
			return
		}
		o.C = c
	}
}

// WithStepSize fixes the asynchronous step; 0 restores the adaptive rule.
func WithStepSize(eta float64) Option {
	return func(o *Options) {
		if !(eta >= 0) || math.IsInf(eta, 1) {
			o.err = violation("StepSize must be non-negative and finite (%g)", eta)
			return
		}
		o.StepSize = eta
	}
}

// WithWorkers sets the pool size used when no executors are given.
// Fewer than one worker is rejected by the parallel drivers with ErrInsufficientWorkers.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithExecutors sets one solver per worker, e.g. remote clients. Nil entries are ignored.
func WithExecutors(execs ...subproblem.Solver) Option {
	return func(o *Options) {
		o.Executors = o.Executors[:0]
		for _, e := range execs {
			if e != nil {
				o.Executors = append(o.Executors, e)
			}
		}
	}
}

// WithSolver sets the local subproblem solver.
func WithSolver(s subproblem.Solver) Option {
	return func(o *Options) {
		if s != nil {
			o.Solver = s
		}
	}
}

// WithHistory records one entry per log event into h.
func WithHistory(h *history.History) Option {
	return func(o *Options) { o.History = h }
}

// WithObserver registers an observer; nil is ignored.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		if obs != nil {
			o.Observers = append(o.Observers, obs)
		}
	}
}

// WithLogger sets the logger; nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithDirectBackend selects the SolveDirect backend.
func WithDirectBackend(b Backend) Option {
	return func(o *Options) {
		if b < BackendAuto || b > BackendQP {
			o.err = violation("unknown backend %d", int(b))
			return
		}
		o.Backend = b
	}
}

// WithQPOptions overrides the ADMM settings of the default solver and of the QP direct backend.
func WithQPOptions(q qp.Options) Option {
	return func(o *Options) { o.QP = q }
}

// resolve applies opts over DefaultOptions and fills in the default solver.
func resolve(pb *problem.Problem, opts []Option) (Options, error) {
	if pb == nil {
		return Options{}, ErrNilProblem
	}
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.err != nil {
		return Options{}, o.err
	}
	if o.Solver == nil {
		o.Solver = subproblem.NewQPSolver(pb,
			subproblem.WithQPOptions(o.QP),
			subproblem.WithLogger(o.Logger))
	}

	return o, nil
}

// CheckOptions applies opts over DefaultOptions and returns the
// violation it records without starting a solve.
func CheckOptions(opts ...Option) error {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return o.err
}

// executors returns the per-worker solvers of the parallel drivers.
func (o *Options) executors() ([]subproblem.Solver, error) {
	if len(o.Executors) > 0 {
		return o.Executors, nil
	}
	if o.Workers < 1 {
		return nil, fmt.Errorf("%d workers: %w", o.Workers, ErrInsufficientWorkers)
	}
	execs := make([]subproblem.Solver, o.Workers)
	for i := range execs {
		execs[i] = o.Solver
	}

	return execs, nil
}
