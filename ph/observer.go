// SPDX-License-Identifier: MIT

package ph

import (
	"time"

	"github.com/katalvlaran/phedge/history"
	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/problem"
)

// Event describes one log event of a driver.
//
// X is the driver's current non-anticipative point. It is only valid during
// the callback; clone it to keep it.
type Event struct {
	Algorithm    string
	State        State
	Iteration    int
	Elapsed      time.Duration
	Computing    time.Duration
	Objective    float64
	Residual     float64 // primal residual (PH) or step length (randomized)
	DualResidual float64 // NaN outside PH
	MaxDelay     int     // async only
	X            *matrix.Dense
	History      *history.History
}

// Observer receives driver events on the coordinator goroutine. Observer
// time is excluded from the computing-time budget.
type Observer interface {
	OnInit(pb *problem.Problem, ev Event)
	OnIteration(pb *problem.Problem, ev Event)
	OnTerminate(pb *problem.Problem, res Result)
}

// ObserverFuncs adapts optional functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	Init      func(pb *problem.Problem, ev Event)
	Iteration func(pb *problem.Problem, ev Event)
	Terminate func(pb *problem.Problem, res Result)
}

// OnInit implements Observer.
func (f ObserverFuncs) OnInit(pb *problem.Problem, ev Event) {
	if f.Init != nil {
		f.Init(pb, ev)
	}
}

// OnIteration implements Observer.
func (f ObserverFuncs) OnIteration(pb *problem.Problem, ev Event) {
	if f.Iteration != nil {
		f.Iteration(pb, ev)
	}
}

// OnTerminate implements Observer.
func (f ObserverFuncs) OnTerminate(pb *problem.Problem, res Result) {
	if f.Terminate != nil {
		f.Terminate(pb, res)
	}
}

// WithCallback calls fn(pb, x, hist) after every log event, x being the
// current non-anticipative point and hist the run history (nil without WithHistory).
func WithCallback(fn func(pb *problem.Problem, x *matrix.Dense, hist *history.History)) Option {
	if fn == nil {
		return func(*Options) {}
	}

	return WithObserver(ObserverFuncs{
		Iteration: func(pb *problem.Problem, ev Event) { fn(pb, ev.X, ev.History) },
	})
}
