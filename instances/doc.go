// SPDX-License-Identifier: MIT

// Package instances builds ready-to-solve multi-stage problems: hydro-thermal
// scheduling under random rain, and a quadratic tracking problem with a known
// solution and a closed-form subproblem solver.
//
// They serve the commands, the runnable examples and the cross-method tests.
package instances

import "errors"

// ErrBadParams is returned for inconsistent instance parameters.
var ErrBadParams = errors.New("instances: invalid parameters")

// defaultSeed replaces a zero seed so that generated instances are reproducible.
const defaultSeed int64 = 1

func seedOrDefault(seed int64) int64 {
	if seed == 0 {
		return defaultSeed
	}

	return seed
}
