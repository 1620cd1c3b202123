// SPDX-License-Identifier: MIT

// Package ph implements Progressive Hedging and its randomized variants for
// multi-stage stochastic programs described by a problem.Problem.
//
// Entry points (all take a context, a problem and functional options):
//
//   - SolveProgressiveHedging: classical synchronous PH. Every iteration solves
//     all N scenario subproblems with the current consensus target and dual,
//     projects onto the non-anticipatory subspace and updates the duals.
//     Stops on primal and dual residuals or on a budget.
//   - SolveRandomizedSync: one sampled scenario per iteration, Douglas-Rachford
//     style update of the table z. Budgets only.
//   - SolveRandomizedPar: batches of up to W distinct scenarios solved by a
//     worker pool from the same snapshot of z, relaxed updates, barrier per batch.
//   - SolveRandomizedAsync: workers are re-dispatched as soon as they return;
//     updates are applied with a delay-aware step size.
//   - SolveDirect: the extensive form (every scenario plus explicit
//     non-anticipativity rows) solved in one model.
//
// Concurrency model:
//
//	The coordinator goroutine (the caller's) owns z, x and the lease table and is
//	the only writer. Workers receive value copies of their inputs and return
//	plain results over a channel. At most one task per scenario is in flight.
//
// Termination is decided by ShouldContinue, a single predicate shared by every
// driver; its outcome is reported in Result.State.
//
// Logging uses log/slog. PrintLevel 0 is silent, 1 logs init, progress every
// PrintStep iterations and termination at Info, 2 adds one Debug line per
// subproblem solve.
package ph
