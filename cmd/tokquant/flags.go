package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/pkg/quant"
)

var (
	configFile string
	workers    int
	logLevel   string
	logFormat  string
	debug      bool
)

func rootFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/tokquant/config.yaml)",
			Sources:     cli.EnvVars("TOKQUANT_CONFIG"),
			Destination: &configFile,
		},
		&cli.IntFlag{
			Name:        "workers",
			Aliases:     []string{"j"},
			Usage:       "row workers (0 = GOMAXPROCS)",
			Destination: &workers,
		},
	}
	return append(flags, loggingFlags()...)
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// parseInts reads a comma separated list of positive integers.
func parseInts(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		if n <= 0 {
			return nil, fmt.Errorf("expected a positive integer, got %d", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseDTypes reads a comma separated list of dtype names.
func parseDTypes(s string) ([]quant.DType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]quant.DType, 0, len(parts))
	for _, p := range parts {
		dt, err := quant.ParseDType(p)
		if err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
