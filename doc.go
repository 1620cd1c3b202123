// SPDX-License-Identifier: MIT

// Package phedge solves multistage stochastic programs by Progressive Hedging
// and its randomized variants.
//
// A problem is a finite set of scenarios on a scenario tree. Each scenario
// owns a decision vector split into stages, and decisions taken at a stage
// must agree across scenarios that are indistinguishable up to that stage
// (non-anticipativity). The drivers decompose the problem into one proximal
// subproblem per scenario and reconcile them by projection.
//
// Packages:
//
//	matrix/      row-major Dense tables (scenarios × coordinates)
//	tree/        scenario trees and their stage partitions
//	model/       variables, linear rows and quadratic objectives
//	problem/     scenarios, builders, probabilities and objective evaluation
//	projection/  the non-anticipativity projection and weighted norms
//	qp/          ADMM solver for convex quadratic programs (gonum)
//	simplex/     LP backend on gonum's simplex
//	subproblem/  the proximal subproblem contract and its QP implementation
//	ph/          the five drivers: PH, randomized sync/par/async, direct
//	history/     progress records and SQLite run persistence
//	remote/      gRPC worker service and client executor
//	instances/   hydro-thermal and quadratic tracking test instances
//	config/      YAML run descriptions for the commands
//	cmd/phsolve  coordinator command
//	cmd/phworker remote worker command
//
// Quick start:
//
//	pb, _ := instances.HydroThermal(instances.DefaultHydroParams())
//	res, err := ph.SolveProgressiveHedging(ctx, pb, ph.WithMu(3), ph.WithMaxTime(time.Minute))
package phedge
