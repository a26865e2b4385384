package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/internal/logger"
	"github.com/samcharles93/tokquant/internal/report"
	"github.com/samcharles93/tokquant/internal/verify"
)

func compareCmd() *cli.Command {
	var (
		tokens    string
		hidden    string
		inputs    string
		targets   string
		seed      uint64
		tolerance float64
		asJSON    bool
	)

	return &cli.Command{
		Name:  "compare",
		Usage: "Check the kernels against a float64 reference over a grid of shapes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "tokens",
				Usage:       "comma separated token counts",
				Value:       joinInts(verify.DefaultTokens),
				Destination: &tokens,
			},
			&cli.StringFlag{
				Name:        "hidden",
				Usage:       "comma separated hidden sizes",
				Value:       joinInts(verify.DefaultHidden),
				Destination: &hidden,
			},
			&cli.StringFlag{
				Name:        "inputs",
				Usage:       "comma separated input dtypes",
				Value:       "bf16,f16",
				Destination: &inputs,
			},
			&cli.StringFlag{
				Name:        "targets",
				Usage:       "comma separated targets",
				Value:       "int8,fp8",
				Destination: &targets,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "random seed for generated inputs",
				Value:       42,
				Destination: &seed,
			},
			&cli.FloatFlag{
				Name:        "tolerance",
				Usage:       "largest accepted relative error",
				Value:       verify.DefaultTolerance,
				Destination: &tolerance,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyCompareConfig(cmd, fileConfig.Compare, &tokens, &hidden, &seed, &tolerance)

			grid, err := gridConfig(tokens, hidden, inputs, targets)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			q := newQuantizer()
			defer q.Close()

			cases := verify.Grid(grid)
			log.Info("running accuracy grid", "cases", len(cases), "workers", q.Workers(), "seed", seed)
			runner := &verify.Runner{Quantizer: q, Log: log, Tolerance: tolerance, Seed: seed}
			results, err := runner.Run(ctx, cases)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if asJSON {
				if err := report.JSON(os.Stdout, report.NewCompareJSON(results)); err != nil {
					return err
				}
			} else {
				report.Compare(os.Stdout, results)
			}

			if _, failed, _, _ := verify.Summary(results); failed > 0 {
				return cli.Exit(fmt.Sprintf("error: %d case(s) exceeded tolerance %g", failed, tolerance), 1)
			}
			return nil
		},
	}
}

func gridConfig(tokens, hidden, inputs, targets string) (verify.Config, error) {
	var cfg verify.Config
	var err error
	if cfg.Tokens, err = parseInts(tokens); err != nil {
		return cfg, fmt.Errorf("--tokens: %w", err)
	}
	if cfg.Hidden, err = parseInts(hidden); err != nil {
		return cfg, fmt.Errorf("--hidden: %w", err)
	}
	if cfg.Inputs, err = parseDTypes(inputs); err != nil {
		return cfg, fmt.Errorf("--inputs: %w", err)
	}
	if cfg.Targets, err = parseDTypes(targets); err != nil {
		return cfg, fmt.Errorf("--targets: %w", err)
	}
	return cfg, nil
}
