package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/internal/report"
	"github.com/samcharles93/tokquant/internal/version"
	"github.com/samcharles93/tokquant/pkg/quant"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			fmt.Printf("version:    %s\n", info.Version)
			if info.Commit != "" {
				fmt.Printf("commit:     %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				fmt.Printf("build time: %s\n", info.BuildTime)
			}
			if info.GoVersion != "" {
				fmt.Printf("go:         %s\n", info.GoVersion)
			}
			return nil
		},
	}
}

func formatsCmd() *cli.Command {
	return &cli.Command{
		Name:  "formats",
		Usage: "List supported input formats and quantization targets",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report.Formats(os.Stdout, quant.SupportedRoutes())
			return nil
		},
	}
}
