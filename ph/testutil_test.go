package ph_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/ph"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/subproblem"
	"github.com/stretchr/testify/require"
)

// quiet silences driver and solver logs.
var quiet = []ph.Option{ph.WithPrintLevel(0), ph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})))}

func opts(extra ...ph.Option) []ph.Option {
	return append(append([]ph.Option(nil), quiet...), extra...)
}

// trackingProblem is the 4-scenario, 3-stage tracking instance with
// unequal probabilities shared by the convergence tests.
func trackingProblem(t *testing.T) *problem.Problem {
	t.Helper()
	pb, err := instances.Tracking(instances.TrackingConfig{
		StageDims: []int{2, 1, 1},
		Branching: 2,
		Probas:    []float64{0.1, 0.2, 0.3, 0.4},
		Seed:      11,
	})
	require.NoError(t, err)

	return pb
}

// wideProblem has 8 scenarios with one coordinate per stage.
func wideProblem(t *testing.T) *problem.Problem {
	t.Helper()
	pb, err := instances.Tracking(instances.TrackingConfig{
		StageDims: []int{1, 1, 1, 1},
		Branching: 2,
		Seed:      5,
	})
	require.NoError(t, err)

	return pb
}

func optimum(t *testing.T, pb *problem.Problem) *matrix.Dense {
	t.Helper()
	x, err := instances.TrackingOptimum(pb)
	require.NoError(t, err)

	return x
}

func requireClose(t *testing.T, want, got *matrix.Dense, atol float64) {
	t.Helper()
	require.NotNil(t, got)
	diff, err := matrix.MaxAbsDiff(want, got)
	require.NoError(t, err)
	require.LessOrEqualf(t, diff, atol, "want\n%sgot\n%s", want, got)
}

// recordingSolver wraps a solver, records the order of requested scenarios and
// the largest number of concurrent solves seen for a single scenario.
type recordingSolver struct {
	inner subproblem.Solver
	pause time.Duration

	inflight []atomic.Int32
	maxSame  atomic.Int32
	calls    atomic.Int64

	mu  sync.Mutex
	seq []int
}

func newRecordingSolver(pb *problem.Problem, inner subproblem.Solver, pause time.Duration) *recordingSolver {
	return &recordingSolver{inner: inner, pause: pause, inflight: make([]atomic.Int32, pb.NScenarios)}
}

func (r *recordingSolver) Solve(ctx context.Context, req subproblem.Request) (subproblem.Result, error) {
	n := r.inflight[req.Scenario].Add(1)
	defer r.inflight[req.Scenario].Add(-1)
	for {
		cur := r.maxSame.Load()
		if n <= cur || r.maxSame.CompareAndSwap(cur, n) {
			break
		}
	}
	r.calls.Add(1)
	r.mu.Lock()
	r.seq = append(r.seq, req.Scenario)
	r.mu.Unlock()
	if r.pause > 0 {
		time.Sleep(r.pause)
	}

	return r.inner.Solve(ctx, req)
}

func (r *recordingSolver) sequence() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int(nil), r.seq...)
}

// slowSolver delays every solve by d unless ctx ends first.
func slowSolver(inner subproblem.Solver, d time.Duration) subproblem.Solver {
	return subproblem.SolverFunc(func(ctx context.Context, req subproblem.Request) (subproblem.Result, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return subproblem.Result{}, ctx.Err()
		}
		return inner.Solve(ctx, req)
	})
}
