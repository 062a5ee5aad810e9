// Package main runs moving-spheres simulations against dynbvh trees and prints tree statistics.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/bmharper/dynbvh-go"
)

const (
	flagItems    = "items"
	flagFrames   = "frames"
	flagLeaf     = "leaf"
	flagSeed     = "seed"
	flagTrials   = "trials"
	flagExtent   = "extent"
	flagChurn    = "churn"
	flagConfig   = "config"
	flagValidate = "validate"
	flagDebug    = "debug"
)

type body struct {
	id     int
	pos    r3.Vector
	vel    r3.Vector
	radius float64
}

func (b *body) Position() r3.Vector { return b.pos }
func (b *body) Radius() float64     { return b.radius }
func (b *body) String() string      { return fmt.Sprintf("body#%d", b.id) }

type simParams struct {
	cfg      dynbvh.Config
	items    int
	frames   int
	extent   float64
	churn    float64
	validate bool
}

type trialResult struct {
	seed       int64
	initial    dynbvh.Stats
	final      dynbvh.Stats
	optimizeMS []float64 // per frame
	queryHits  int
}

func main() {
	var logger *zap.Logger

	app := &cli.App{
		Name:  "dynbvh-sim",
		Usage: "simulate moving spheres in a dynamic BVH",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: flagItems, Aliases: []string{"n"}, Value: 10000, Usage: "number of bodies"},
			&cli.IntFlag{Name: flagFrames, Aliases: []string{"f"}, Value: 100, Usage: "number of frames to simulate"},
			&cli.IntFlag{Name: flagLeaf, Value: 1, Usage: "items per leaf; only 1 enables rotations"},
			&cli.Int64Flag{Name: flagSeed, Value: 1, Usage: "random seed of the first trial"},
			&cli.IntFlag{Name: flagTrials, Value: 1, Usage: "independent trials to run in parallel, seeded consecutively"},
			&cli.Float64Flag{Name: flagExtent, Value: 1000, Usage: "side length of the simulated cube"},
			&cli.Float64Flag{Name: flagChurn, Value: 0.01, Usage: "fraction of bodies removed and re-added per frame"},
			&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "load tree configuration from YAML `FILE`"},
			&cli.BoolFlag{Name: flagValidate, Usage: "check tree invariants after every frame"},
			&cli.BoolFlag{Name: flagDebug, Aliases: []string{"vvv"}, Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			var err error
			if c.Bool(flagDebug) {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}
			return err
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				//nolint:errcheck
				logger.Sync()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (dynbvh.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return dynbvh.ConfigForItems(c.Int(flagItems), c.Int(flagLeaf)), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return dynbvh.Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	attrs := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &attrs); err != nil {
		return dynbvh.Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return dynbvh.DecodeConfig(attrs)
}

// checkFits fails when the pools cannot hold items even with every leaf full.
func checkFits(cfg dynbvh.Config, items int) error {
	if limit := cfg.MaxBuckets * cfg.MaxItemsPerLeaf; items > limit {
		return errors.Wrapf(dynbvh.ErrCapacityExceeded,
			"%d items do not fit in %d buckets of %d items; raise max_buckets or lower --items",
			items, cfg.MaxBuckets, cfg.MaxItemsPerLeaf)
	}
	return nil
}

func run(c *cli.Context, logger *zap.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	params := simParams{
		cfg:      cfg,
		items:    c.Int(flagItems),
		frames:   c.Int(flagFrames),
		extent:   c.Float64(flagExtent),
		churn:    c.Float64(flagChurn),
		validate: c.Bool(flagValidate),
	}
	if c.String(flagConfig) != "" && c.IsSet(flagLeaf) {
		logger.Warn("--leaf is ignored when --config is given", zap.Int("maxItemsPerLeaf", cfg.MaxItemsPerLeaf))
	}
	if err := checkFits(cfg, params.items); err != nil {
		return err
	}
	if params.items > cfg.MaxBuckets {
		logger.Warn("pools may be too small for the item count unless leaves stay full",
			zap.Int("items", params.items), zap.Int("maxBuckets", cfg.MaxBuckets), zap.Int("maxNodes", cfg.MaxNodes))
	}
	if cfg.MaxItemsPerLeaf != 1 {
		logger.Warn("rotations disabled, leaves hold more than one item", zap.Int("maxItemsPerLeaf", cfg.MaxItemsPerLeaf))
	}

	// each trial owns its tree, so trials can run side by side
	trials := max(c.Int(flagTrials), 1)
	results := make([]trialResult, trials)
	group, ctx := errgroup.WithContext(c.Context)
	for i := 0; i < trials; i++ {
		seed := c.Int64(flagSeed) + int64(i)
		group.Go(func() error {
			res, err := simulate(ctx, params, seed, logger.With(zap.Int64("seed", seed)))
			if err != nil {
				return errors.WithMessagef(err, "trial with seed %d", seed)
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	report, err := resultsTable(results)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}

func simulate(ctx context.Context, params simParams, seed int64, logger *zap.Logger) (trialResult, error) {
	res := trialResult{seed: seed, optimizeMS: make([]float64, 0, params.frames)}
	cfg := params.cfg
	cfg.Logger = logger

	tree, err := dynbvh.New[*body](cfg)
	if err != nil {
		return res, err
	}
	defer tree.Dispose()

	rng := rand.New(rand.NewSource(seed))
	extent := params.extent
	bodies := lo.Times(params.items, func(i int) *body {
		return &body{
			id:     i,
			pos:    r3.Vector{X: rng.Float64() * extent, Y: rng.Float64() * extent, Z: rng.Float64() * extent},
			vel:    r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()},
			radius: 0.5 + rng.Float64()*2,
		}
	})

	start := time.Now()
	if _, err := tree.AddAll(bodies); err != nil {
		return res, err
	}
	logger.Info("tree built", zap.Int("items", tree.Len()), zap.Duration("elapsed", time.Since(start)))
	res.initial = tree.Stats()

	optimize := cfg.MaxItemsPerLeaf == 1
	churn := int(params.churn * float64(len(bodies)))
	found := make([]*body, 0, len(bodies))
	order := make([]int, len(bodies))

	for frame := 0; frame < params.frames; frame++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, b := range bodies {
			step(b, extent)
			if err := tree.MarkMoved(b); err != nil {
				return res, errors.WithMessagef(err, "frame %d", frame)
			}
		}

		// remove and re-add a random subset, which frees and reuses pool slots
		for i := range order {
			order[i] = i
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, i := range order[:min(churn, len(order))] {
			if err := tree.Remove(bodies[i]); err != nil {
				return res, errors.WithMessagef(err, "frame %d", frame)
			}
			if err := tree.Add(bodies[i]); err != nil {
				return res, errors.WithMessagef(err, "frame %d", frame)
			}
		}

		t0 := time.Now()
		if optimize {
			if err := tree.Optimize(); err != nil {
				return res, err
			}
		}
		res.optimizeMS = append(res.optimizeMS, float64(time.Since(t0).Microseconds())/1000)

		for _, b := range bodies[:min(len(bodies), 100)] {
			found = tree.SearchSphere(b.pos, b.radius*4, found)
			res.queryHits += len(found)
		}

		if params.validate {
			if err := tree.Validate(); err != nil {
				return res, errors.WithMessagef(err, "frame %d", frame)
			}
		}
	}

	res.final = tree.Stats()
	logger.Info("simulation done",
		zap.Int("frames", params.frames),
		zap.Int("queryHits", res.queryHits),
		zap.Int("freeNodes", tree.FreeNodes()),
		zap.Int("freeBuckets", tree.FreeBuckets()))
	return res, nil
}

// step advances b by one frame, bouncing off the walls of the cube.
func step(b *body, extent float64) {
	b.pos = b.pos.Add(b.vel)
	if b.pos.X < 0 || b.pos.X > extent {
		b.vel.X = -b.vel.X
	}
	if b.pos.Y < 0 || b.pos.Y > extent {
		b.vel.Y = -b.vel.Y
	}
	if b.pos.Z < 0 || b.pos.Z > extent {
		b.vel.Z = -b.vel.Z
	}
}

func resultsTable(results []trialResult) (string, error) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"Seed", "Items", "Nodes", "Max depth", "Branch SA (initial)", "Branch SA (final)",
		"Optimize mean ms", "Optimize p95 ms", "Query hits",
	})
	for _, res := range results {
		mean, p95 := 0.0, 0.0
		if len(res.optimizeMS) > 0 {
			var err error
			if mean, err = stats.Mean(res.optimizeMS); err != nil {
				return "", err
			}
			if p95, err = stats.Percentile(res.optimizeMS, 95); err != nil {
				return "", err
			}
		}
		t.AppendRow(table.Row{
			res.seed,
			res.final.Items,
			res.final.Nodes,
			res.final.MaxDepth,
			fmt.Sprintf("%.0f", res.initial.BranchSurfaceArea),
			fmt.Sprintf("%.0f", res.final.BranchSurfaceArea),
			fmt.Sprintf("%.3f", mean),
			fmt.Sprintf("%.3f", p95),
			res.queryHits,
		})
	}
	return t.Render(), nil
}
