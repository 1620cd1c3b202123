// SPDX-License-Identifier: MIT

// Package config loads the YAML run description used by the phsolve and
// phworker commands and turns it into a problem instance and ph options.
//
// A minimal file:
//
//	algorithm: progressive-hedging
//	instance:
//	  kind: hydro
//	solver:
//	  mu: 3
//	  max_time: 30s
//
// Absent fields keep the values of Default.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/katalvlaran/phedge/instances"
	"github.com/katalvlaran/phedge/ph"
	"github.com/katalvlaran/phedge/problem"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate and Load for unusable settings.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Algorithm names accepted in the algorithm field. They match ph.Result.Algorithm.
const (
	AlgoProgressiveHedging = "progressive-hedging"
	AlgoRandomizedSync     = "randomized-sync"
	AlgoRandomizedPar      = "randomized-par"
	AlgoRandomizedAsync    = "randomized-async"
	AlgoDirect             = "direct"
)

// Instance kinds.
const (
	KindHydro    = "hydro"
	KindTracking = "tracking"
)

// Driver is the common signature of the ph entry points.
type Driver func(ctx context.Context, pb *problem.Problem, opts ...ph.Option) (ph.Result, error)

var drivers = map[string]Driver{
	AlgoProgressiveHedging: ph.SolveProgressiveHedging,
	AlgoRandomizedSync:     ph.SolveRandomizedSync,
	AlgoRandomizedPar:      ph.SolveRandomizedPar,
	AlgoRandomizedAsync:    ph.SolveRandomizedAsync,
	AlgoDirect:             ph.SolveDirect,
}

// HydroConfig mirrors instances.HydroParams.
type HydroConfig struct {
	Stages       int       `yaml:"stages"`
	ThermalCost  float64   `yaml:"thermal_cost"`
	Capacity     float64   `yaml:"capacity"`
	Demand       float64   `yaml:"demand"`
	InitialLevel float64   `yaml:"initial_level"`
	Rain         []float64 `yaml:"rain,flow"`
	RainProba    []float64 `yaml:"rain_proba,flow"`
}

// TrackingConfig mirrors instances.TrackingConfig without explicit targets.
type TrackingConfig struct {
	StageDims []int     `yaml:"stage_dims,flow"`
	Branching int       `yaml:"branching"`
	Probas    []float64 `yaml:"probas,flow,omitempty"`
	Lo        float64   `yaml:"lo"`
	Hi        float64   `yaml:"hi"`
	Seed      int64     `yaml:"seed"`
}

// InstanceConfig selects and parameterizes the problem instance.
type InstanceConfig struct {
	Kind     string         `yaml:"kind"`
	Hydro    HydroConfig    `yaml:"hydro"`
	Tracking TrackingConfig `yaml:"tracking"`
}

// SolverConfig holds the ph options. Zero durations and a zero step size
// keep their "unlimited" and "adaptive" meaning; Workers 0 keeps the ph default.
type SolverConfig struct {
	Mu               float64       `yaml:"mu"`
	EpsPrimal        float64       `yaml:"eps_primal"`
	EpsDual          float64       `yaml:"eps_dual"`
	MaxIter          int           `yaml:"max_iter"`
	MaxTime          time.Duration `yaml:"max_time"`
	MaxComputingTime time.Duration `yaml:"max_computing_time"`
	PrintLevel       int           `yaml:"print_level"`
	PrintStep        int           `yaml:"print_step"`
	Seed             int64         `yaml:"seed"`
	Distribution     string        `yaml:"distribution"`
	C                float64       `yaml:"c"`
	StepSize         float64       `yaml:"step_size"`
	Workers          int           `yaml:"workers"`
	Backend          string        `yaml:"backend"`
}

// Config is a complete run description.
type Config struct {
	Algorithm     string         `yaml:"algorithm"`
	Instance      InstanceConfig `yaml:"instance"`
	Solver        SolverConfig   `yaml:"solver"`
	RemoteWorkers []string       `yaml:"remote_workers,omitempty"`
	HistoryDB     string         `yaml:"history_db,omitempty"`
}

// Default returns progressive hedging on the default hydro-thermal instance
// with the ph default options.
func Default() Config {
	hp := instances.DefaultHydroParams()
	po := ph.DefaultOptions()

	return Config{
		Algorithm: AlgoProgressiveHedging,
		Instance: InstanceConfig{
			Kind: KindHydro,
			Hydro: HydroConfig{
				Stages:       hp.Stages,
				ThermalCost:  hp.ThermalCost,
				Capacity:     hp.Capacity,
				Demand:       hp.Demand,
				InitialLevel: hp.InitialLevel,
				Rain:         hp.Rain,
				RainProba:    hp.RainProba,
			},
			Tracking: TrackingConfig{
				StageDims: []int{2, 1, 1},
				Branching: 2,
			},
		},
		Solver: SolverConfig{
			Mu:           po.Mu,
			EpsPrimal:    po.EpsPrimal,
			EpsDual:      po.EpsDual,
			MaxIter:      po.MaxIter,
			MaxTime:      po.MaxTime,
			PrintLevel:   po.PrintLevel,
			PrintStep:    po.PrintStep,
			Distribution: po.Distribution.String(),
			C:            po.C,
			Backend:      po.Backend.String(),
		},
	}
}

// Load reads and validates the file at path over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks names and option ranges without building the instance.
func (c Config) Validate() error {
	if _, ok := drivers[c.Algorithm]; !ok {
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	switch c.Instance.Kind {
	case KindHydro, KindTracking:
	default:
		return fmt.Errorf("%w: unknown instance kind %q", ErrInvalidConfig, c.Instance.Kind)
	}
	opts, err := c.Options()
	if err != nil {
		return err
	}
	if err := ph.CheckOptions(opts...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Driver returns the ph entry point named by Algorithm.
func (c Config) Driver() (Driver, error) {
	d, ok := drivers[c.Algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}

	return d, nil
}

// Options translates the solver section into ph options.
func (c Config) Options() ([]ph.Option, error) {
	s := c.Solver
	dist, err := ph.ParseDistribution(s.Distribution)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	backend, err := ph.ParseBackend(s.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	opts := []ph.Option{
		ph.WithMu(s.Mu),
		ph.WithEpsilon(s.EpsPrimal, s.EpsDual),
		ph.WithMaxIter(s.MaxIter),
		ph.WithMaxTime(s.MaxTime),
		ph.WithMaxComputingTime(s.MaxComputingTime),
		ph.WithPrintLevel(s.PrintLevel),
		ph.WithPrintStep(s.PrintStep),
		ph.WithSeed(s.Seed),
		ph.WithDistribution(dist),
		ph.WithC(s.C),
		ph.WithStepSize(s.StepSize),
		ph.WithDirectBackend(backend),
	}
	if s.Workers != 0 {
		opts = append(opts, ph.WithWorkers(s.Workers))
	}

	return opts, nil
}

// Problem builds the configured instance.
func (c Config) Problem() (*problem.Problem, error) {
	switch c.Instance.Kind {
	case KindHydro:
		h := c.Instance.Hydro
		return instances.HydroThermal(instances.HydroParams{
			Stages:       h.Stages,
			ThermalCost:  h.ThermalCost,
			Capacity:     h.Capacity,
			Demand:       h.Demand,
			InitialLevel: h.InitialLevel,
			Rain:         h.Rain,
			RainProba:    h.RainProba,
		})
	case KindTracking:
		t := c.Instance.Tracking
		return instances.Tracking(instances.TrackingConfig{
			StageDims: t.StageDims,
			Branching: t.Branching,
			Probas:    t.Probas,
			Lo:        t.Lo,
			Hi:        t.Hi,
			Seed:      t.Seed,
		})
	default:
		return nil, fmt.Errorf("%w: unknown instance kind %q", ErrInvalidConfig, c.Instance.Kind)
	}
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
