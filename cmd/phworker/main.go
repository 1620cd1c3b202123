// SPDX-License-Identifier: MIT

// Command phworker serves the subproblems of a configured instance over gRPC
// until interrupted. The coordinator (phsolve) checks that the instance shape
// matches its own before dispatching work.
//
//	PHWORKER_ADDR=:7070 phworker -config run.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/katalvlaran/phedge/config"
	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/remote"
	"github.com/katalvlaran/phedge/subproblem"
)

func main() {
	configPath := flag.String("config", envOr("PHEDGE_CONFIG", ""), "YAML run description (only the instance section is used)")
	addr := flag.String("addr", envOr("PHWORKER_ADDR", ":7070"), "listen address")
	id := flag.String("id", envOr("PHWORKER_ID", ""), "worker id reported to coordinators (default: random)")
	flag.Parse()

	if err := run(*configPath, *addr, *id); err != nil {
		fmt.Fprintln(os.Stderr, "phworker:", err)
		os.Exit(1)
	}
}

func run(configPath, addr, id string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	level := slog.LevelInfo
	if cfg.Solver.PrintLevel >= 2 {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	pb, err := cfg.Problem()
	if err != nil {
		return fmt.Errorf("build instance: %w", err)
	}

	// Tracking instances have a closed-form subproblem.
	var solver subproblem.Solver
	if cfg.Instance.Kind == config.KindTracking {
		solver = instances.NewTrackingSolver(pb)
	} else {
		solver = subproblem.NewQPSolver(pb, subproblem.WithLogger(logger.With("component", "subproblem")))
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := remote.NewServer(pb, solver,
		remote.WithWorkerID(id),
		remote.WithServerLogger(logger.With("component", "remote")))

	return srv.Serve(ctx, lis)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
