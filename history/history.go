// SPDX-License-Identifier: MIT

// Package history records the progress of a solve (one Entry per log event)
// and persists finished runs to SQLite.
package history

import (
	"math"
	"sync"
	"time"

	"github.com/katalvlaran/phedge/matrix"
)

// Entry is one log event of a driver.
type Entry struct {
	Iteration     int
	Time          time.Duration // wall time since the solve started
	ComputingTime time.Duration // wall time minus logging overhead
	Functional    float64       // Σ p_s f_s at the current feasible point
	Residual      float64       // primal residual (PH) or step length (randomized)
	DualResidual  float64       // PH only; NaN otherwise
	DistOpt       float64       // weighted distance to the reference; NaN without one
	MaxDelay      int           // async only: largest delay since the previous entry
}

// History is a concurrency-safe, append-only list of entries with an optional
// reference solution used to fill Entry.DistOpt.
type History struct {
	mu        sync.Mutex
	reference *matrix.Dense
	entries   []Entry
}

// New returns an empty history without reference.
func New() *History { return &History{} }

// NewWithReference returns an empty history that tracks the distance to ref.
func NewWithReference(ref *matrix.Dense) *History {
	h := &History{}
	if ref != nil {
		h.reference = ref.Clone()
	}

	return h
}

// Reference returns the reference solution, or nil.
func (h *History) Reference() *matrix.Dense {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.reference
}

// Append records e.
func (h *History) Append(e Entry) {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.entries)
}

// Entries returns a copy of all entries.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Entry(nil), h.entries...)
}

// Last returns the most recent entry.
func (h *History) Last() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}

	return h.entries[len(h.entries)-1], true
}

// Functional returns the functional values in order.
func (h *History) Functional() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Functional
	}

	return out
}

// DistOpt returns the distances to the reference in order (NaN when untracked).
func (h *History) DistOpt() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.DistOpt
	}

	return out
}

// Best returns the entry with the lowest finite functional value.
func (h *History) Best() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	best, found := Entry{Functional: math.Inf(1)}, false
	for _, e := range h.entries {
		if !math.IsNaN(e.Functional) && e.Functional < best.Functional {
			best, found = e, true
		}
	}

	return best, found
}
