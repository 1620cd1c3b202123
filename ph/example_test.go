package ph_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/ph"
)

// Two scenarios share the first-stage decision and split afterwards:
// the first stage averages the targets, the second follows each scenario.
func ExampleSolveProgressiveHedging() {
	pb, err := instances.Tracking(instances.TrackingConfig{
		StageDims: []int{1, 1},
		Branching: 2,
		Targets:   [][]float64{{1, 2}, {3, 6}},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	res, err := ph.SolveProgressiveHedging(context.Background(), pb,
		ph.WithSolver(instances.NewTrackingSolver(pb)),
		ph.WithEpsilon(1e-9, 1e-9),
		ph.WithPrintLevel(0),
		ph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	for s := 0; s < pb.NScenarios; s++ {
		row, _ := res.X.Row(s)
		fmt.Printf("x[%d] = [%.2f %.2f]\n", s, row[0], row[1])
	}
	fmt.Println("state:", res.State)
	// Output:
	// x[0] = [2.00 2.00]
	// x[1] = [2.00 6.00]
	// state: converged
}
