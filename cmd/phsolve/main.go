// SPDX-License-Identifier: MIT

// Command phsolve runs one solve described by a YAML file and prints a summary.
//
//	phsolve -config run.yaml
//	PHEDGE_ALGORITHM=randomized-async PHEDGE_WORKERS=host1:7070,host2:7070 phsolve
//
// Without -config the built-in defaults are used (progressive hedging on the
// 5-stage hydro-thermal instance).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/katalvlaran/phedge/config"
	"github.com/katalvlaran/phedge/history"
	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/matrix"
	"github.com/katalvlaran/phedge/ph"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/remote"
)

func main() {
	configPath := flag.String("config", envOr("PHEDGE_CONFIG", ""), "YAML run description")
	listRuns := flag.Bool("list", false, "list the runs stored in the history database and exit")
	flag.Parse()

	if err := run(*configPath, *listRuns); err != nil {
		fmt.Fprintln(os.Stderr, "phsolve:", err)
		os.Exit(1)
	}
}

func run(configPath string, listRuns bool) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	cfg.Algorithm = envOr("PHEDGE_ALGORITHM", cfg.Algorithm)
	cfg.HistoryDB = envOr("PHEDGE_HISTORY_DB", cfg.HistoryDB)
	if w := envOr("PHEDGE_WORKERS", ""); w != "" {
		cfg.RemoteWorkers = strings.Split(w, ",")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Solver.PrintLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if listRuns {
		return printRuns(ctx, cfg.HistoryDB)
	}

	pb, err := cfg.Problem()
	if err != nil {
		return fmt.Errorf("build instance: %w", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	drive, err := cfg.Driver()
	if err != nil {
		return err
	}

	hist := history.NewWithReference(reference(cfg, pb))
	opts = append(opts, ph.WithHistory(hist), ph.WithLogger(logger.With("component", "ph")))

	if len(cfg.RemoteWorkers) > 0 {
		clients, err := remote.Connect(ctx, cfg.RemoteWorkers, pb)
		if err != nil {
			return err
		}
		defer func() {
			for _, c := range clients {
				_ = c.Close()
			}
		}()
		opts = append(opts, ph.WithExecutors(remote.Executors(clients)...))
		logger.Info("remote workers connected", "count", len(clients))
	}

	started := time.Now()
	res, err := drive(ctx, pb, opts...)
	if err != nil {
		return err
	}

	var runID string
	if cfg.HistoryDB != "" {
		if runID, err = saveRun(context.WithoutCancel(ctx), cfg.HistoryDB, started, res, hist); err != nil {
			return err
		}
	}

	fmt.Println(renderSummary(cfg, pb, res, runID))

	return nil
}

// reference is the known optimum of tracking instances, nil otherwise.
func reference(cfg config.Config, pb *problem.Problem) *matrix.Dense {
	if cfg.Instance.Kind != config.KindTracking {
		return nil
	}
	x, err := instances.TrackingOptimum(pb)
	if err != nil {
		return nil
	}

	return x
}

func newLogger(printLevel int) *slog.Logger {
	level := slog.LevelInfo
	if printLevel >= 2 {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func saveRun(ctx context.Context, path string, started time.Time, res ph.Result, hist *history.History) (string, error) {
	store, err := history.OpenStore(path)
	if err != nil {
		return "", err
	}
	defer store.Close()

	run := &history.Run{
		Algorithm:  res.Algorithm,
		StartedAt:  started,
		State:      res.State.String(),
		Iterations: res.Iterations,
		Objective:  res.Objective,
		Elapsed:    res.Elapsed,
		Entries:    hist.Entries(),
	}
	if res.X != nil {
		run.Rows, run.Cols = res.X.Shape()
		run.Solution = make([]float64, 0, run.Rows*run.Cols)
		for i := 0; i < run.Rows; i++ {
			run.Solution = append(run.Solution, res.X.RowView(i)...)
		}
	}

	return store.SaveRun(ctx, run)
}

func printRuns(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("no history database configured")
	}
	store, err := history.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	fmt.Println(renderRuns(runs))

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
