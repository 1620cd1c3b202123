// SPDX-License-Identifier: MIT

// Package tree models the scenario tree of a multi-stage stochastic program as
// a sequence of partitions of the scenario ids, one per stage.
//
// Two scenarios share a class at stage t when their histories coincide up to
// and including stage t, so their stage-t decisions must coincide. Classes at
// stage t refine the classes at stage t-1, and every stage's classes partition
// {0, ..., N-1}. New rejects anything else.
//
// Complexity:
//   - New: O(T*N); ClassOf: O(1); Classes: O(1) (shared, read-only slices).
package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned when there are no stages or no scenarios.
	ErrEmpty = errors.New("tree: no stages or no scenarios")

	// ErrNotPartition is returned when a stage's classes do not partition the scenario ids.
	ErrNotPartition = errors.New("tree: stage classes do not partition the scenarios")

	// ErrNotRefinement is returned when a class at stage t straddles two classes of stage t-1.
	ErrNotRefinement = errors.New("tree: stage classes do not refine the previous stage")

	// ErrBadBranching is returned by Uniform for non-positive stage or branching counts.
	ErrBadBranching = errors.New("tree: stages and branching must be > 0")
)

// Tree is an immutable scenario tree. Safe for concurrent readers.
type Tree struct {
	nscenarios int
	classes    [][][]int // classes[t][c] = sorted scenario ids of class c at stage t
	classOf    [][]int   // classOf[t][s] = index c of the class holding s at stage t
}

// New validates the per-stage classes and builds the tree.
// stages[t] lists the classes at stage t; ids are 0-based. Input slices are copied.
//
// Errors:
//   - ErrEmpty, ErrNotPartition, ErrNotRefinement (wrapped with the stage index).
func New(nscenarios int, stages [][][]int) (*Tree, error) {
	if nscenarios <= 0 || len(stages) == 0 {
		return nil, ErrEmpty
	}

	tr := &Tree{
		nscenarios: nscenarios,
		classes:    make([][][]int, len(stages)),
		classOf:    make([][]int, len(stages)),
	}
	for t, classes := range stages {
		owner := make([]int, nscenarios)
		for s := range owner {
			owner[s] = -1 // unassigned
		}
		tr.classes[t] = make([][]int, len(classes))
		for c, class := range classes {
			if len(class) == 0 {
				return nil, fmt.Errorf("stage %d class %d is empty: %w", t, c, ErrNotPartition)
			}
			for _, s := range class {
				if s < 0 || s >= nscenarios {
					return nil, fmt.Errorf("stage %d: scenario %d out of range: %w", t, s, ErrNotPartition)
				}
				if owner[s] != -1 {
					return nil, fmt.Errorf("stage %d: scenario %d in two classes: %w", t, s, ErrNotPartition)
				}
				owner[s] = c
			}
			tr.classes[t][c] = append([]int(nil), class...)
		}
		for s, c := range owner {
			if c == -1 {
				return nil, fmt.Errorf("stage %d: scenario %d in no class: %w", t, s, ErrNotPartition)
			}
		}
		tr.classOf[t] = owner

		// Refinement: every member of a class must share the same parent class.
		if t == 0 {
			continue
		}
		prev := tr.classOf[t-1]
		for c, class := range tr.classes[t] {
			parent := prev[class[0]]
			for _, s := range class[1:] {
				if prev[s] != parent {
					return nil, fmt.Errorf("stage %d class %d: %w", t, c, ErrNotRefinement)
				}
			}
		}
	}

	return tr, nil
}

// Uniform builds the complete tree with one root class and the given branching
// factor at every later stage. Scenarios are numbered in lexicographic order of
// their branch choices, so every class is a contiguous id range.
// It holds branching^(nstages-1) scenarios.
func Uniform(nstages, branching int) (*Tree, error) {
	if nstages <= 0 || branching <= 0 {
		return nil, ErrBadBranching
	}
	n := 1
	for t := 1; t < nstages; t++ {
		n *= branching
	}

	stages := make([][][]int, nstages)
	width := n // size of each class at the current stage
	for t := 0; t < nstages; t++ {
		if t > 0 {
			width /= branching
		}
		classes := make([][]int, 0, n/width)
		for lo := 0; lo < n; lo += width {
			class := make([]int, width)
			for k := range class {
				class[k] = lo + k
			}
			classes = append(classes, class)
		}
		stages[t] = classes
	}

	return New(n, stages)
}

// NStages returns the number of stages.
func (tr *Tree) NStages() int { return len(tr.classes) }

// NScenarios returns the number of scenarios (leaves).
func (tr *Tree) NScenarios() int { return tr.nscenarios }

// Classes returns the classes at stage t. The result is shared: do not mutate.
func (tr *Tree) Classes(t int) [][]int { return tr.classes[t] }

// ClassOf returns the members of the class holding scenario s at stage t.
// The result is shared: do not mutate.
func (tr *Tree) ClassOf(t, s int) []int { return tr.classes[t][tr.classOf[t][s]] }

// ClassIndex returns the index of the class holding scenario s at stage t.
func (tr *Tree) ClassIndex(t, s int) int { return tr.classOf[t][s] }
