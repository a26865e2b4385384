package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/internal/bench"
	"github.com/samcharles93/tokquant/internal/logger"
	"github.com/samcharles93/tokquant/internal/report"
)

func benchCmd() *cli.Command {
	var (
		tokens  string
		hidden  string
		inputs  string
		targets string
		warmup  int
		iters   int
		asJSON  bool
	)

	return &cli.Command{
		Name:    "bench",
		Aliases: []string{"benchmark"},
		Usage:   "Measure quantization throughput",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "tokens",
				Usage:       "comma separated token counts",
				Value:       joinInts(bench.DefaultTokens),
				Destination: &tokens,
			},
			&cli.StringFlag{
				Name:        "hidden",
				Usage:       "comma separated hidden sizes",
				Value:       joinInts(bench.DefaultHidden),
				Destination: &hidden,
			},
			&cli.StringFlag{
				Name:        "inputs",
				Usage:       "comma separated input dtypes",
				Value:       "bf16",
				Destination: &inputs,
			},
			&cli.StringFlag{
				Name:        "targets",
				Usage:       "comma separated targets",
				Value:       "int8,fp8",
				Destination: &targets,
			},
			&cli.IntFlag{
				Name:        "warmup",
				Usage:       "number of warmup runs per shape",
				Value:       bench.DefaultWarmup,
				Destination: &warmup,
			},
			&cli.IntFlag{
				Name:        "iters",
				Aliases:     []string{"runs"},
				Usage:       "number of timed runs per shape",
				Value:       bench.DefaultIters,
				Destination: &iters,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyBenchConfig(cmd, fileConfig.Bench, &tokens, &hidden, &warmup, &iters)

			grid, err := gridConfig(tokens, hidden, inputs, targets)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			q := newQuantizer()
			defer q.Close()

			host := bench.DetectHost()
			cfg := bench.Config{
				Tokens:  grid.Tokens,
				Hidden:  grid.Hidden,
				Inputs:  grid.Inputs,
				Targets: grid.Targets,
				Warmup:  warmup,
				Iters:   iters,
			}
			results, err := bench.Run(ctx, q, cfg, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if asJSON {
				return report.JSON(os.Stdout, report.BenchJSON{Host: host, Results: results})
			}
			report.Host(os.Stdout, host)
			report.Bench(os.Stdout, results)
			return nil
		},
	}
}
