// SPDX-License-Identifier: MIT

package ph

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/katalvlaran/phedge/problem"
)

type distributionKind int

const (
	kindProportional distributionKind = iota
	kindUniform
	kindCustom
)

// Distribution is the categorical law used to sample scenarios.
// The zero value is Proportional.
type Distribution struct {
	kind    distributionKind
	weights []float64
}

// Proportional samples scenario s with probability p_s.
func Proportional() Distribution { return Distribution{kind: kindProportional} }

// Uniform samples every scenario with probability 1/N.
func Uniform() Distribution { return Distribution{kind: kindUniform} }

// Custom samples scenario s with probability w[s]. The weights are copied and
// validated against the problem when a solve starts.
func Custom(w []float64) Distribution {
	return Distribution{kind: kindCustom, weights: append([]float64(nil), w...)}
}

// ParseDistribution maps "proportional", "uniform" to the matching law.
func ParseDistribution(name string) (Distribution, error) {
	switch name {
	case "", "proportional":
		return Proportional(), nil
	case "uniform":
		return Uniform(), nil
	default:
		return Distribution{}, fmt.Errorf("%q: %w", name, ErrInvalidDistribution)
	}
}

// String returns "proportional", "uniform" or "custom".
func (d Distribution) String() string {
	switch d.kind {
	case kindUniform:
		return "uniform"
	case kindCustom:
		return "custom"
	default:
		return "proportional"
	}
}

// Weights returns the sampling probabilities for pb.
func (d Distribution) Weights(pb *problem.Problem) ([]float64, error) {
	n := pb.NScenarios
	switch d.kind {
	case kindUniform:
		w := make([]float64, n)
		for i := range w {
			w[i] = 1 / float64(n)
		}
		return w, nil
	case kindCustom:
		if err := problem.ValidateProbabilities(d.weights, n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDistribution, err)
		}
		return append([]float64(nil), d.weights...), nil
	default:
		return append([]float64(nil), pb.Probas...), nil
	}
}

// defaultRNGSeed replaces a zero seed so that the default run is reproducible.
const defaultRNGSeed int64 = 1

// rngFromSeed returns a deterministic *rand.Rand; seed 0 selects defaultRNGSeed.
func rngFromSeed(seed int64) *rand.Rand {
	if seed == 0 {
		seed = defaultRNGSeed
	}

	return rand.New(rand.NewSource(seed))
}

// sampler draws scenario ids from a categorical law by inverse transform on
// the cumulative weights. Not safe for concurrent use.
type sampler struct {
	weights []float64
	cum     []float64
	qmin    float64 // smallest positive weight
	rng     *rand.Rand
}

func newSampler(weights []float64, seed int64) *sampler {
	s := &sampler{
		weights: weights,
		cum:     make([]float64, len(weights)),
		qmin:    math.Inf(1),
		rng:     rngFromSeed(seed),
	}
	var acc float64
	for i, w := range weights {
		acc += w
		s.cum[i] = acc
		if w > 0 && w < s.qmin {
			s.qmin = w
		}
	}

	return s
}

// draw returns an id with positive weight. O(log N).
func (s *sampler) draw() int {
	n := len(s.cum)
	u := s.rng.Float64() * s.cum[n-1]
	i := sort.Search(n, func(k int) bool { return s.cum[k] > u })
	if i == n {
		// u rounded up to the total; take the last positive weight.
		for i = n - 1; i > 0 && s.weights[i] == 0; i-- {
		}
	}

	return i
}

// drawFree draws until it finds an id for which busy returns false, giving up
// after a bounded number of attempts. Returns -1 when none was found.
func (s *sampler) drawFree(busy func(int) bool) int {
	limit := 8 * len(s.cum)
	for k := 0; k < limit; k++ {
		if id := s.draw(); !busy(id) {
			return id
		}
	}

	return -1
}
