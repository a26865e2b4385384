package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/internal/logger"
	"github.com/samcharles93/tokquant/internal/version"
	"github.com/samcharles93/tokquant/pkg/quant"
)

func main() {
	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "tokquant",
		Usage:   "Per-token dynamic quantization of BF16/F16 activations to int8 and FP8",
		Version: version.String(),
		Flags:   rootFlags(),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			quantizeCmd(),
			compareCmd(),
			benchCmd(),
			formatsCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

// setup loads the config file and installs the logger in the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
	}
	fileConfig = cfg
	applyRootConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log := logger.FromFormat(logFormat, level, os.Stderr)
	return logger.WithContext(ctx, log), nil
}

func newQuantizer() *quant.Quantizer {
	return quant.New(quant.Options{Workers: workers})
}
