package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the tokquant configuration file
// (~/.config/tokquant/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	Workers *int   `yaml:"workers"`
	Target  string `yaml:"target"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`

	Bench   BenchConfig   `yaml:"bench"`
	Compare CompareConfig `yaml:"compare"`
}

type BenchConfig struct {
	Tokens []int `yaml:"tokens"`
	Hidden []int `yaml:"hidden"`
	Warmup *int  `yaml:"warmup"`
	Iters  *int  `yaml:"iters"`
}

type CompareConfig struct {
	Tokens    []int    `yaml:"tokens"`
	Hidden    []int    `yaml:"hidden"`
	Seed      *uint64  `yaml:"seed"`
	Tolerance *float64 `yaml:"tolerance"`
}

// fileConfig is loaded by the root Before hook.
var fileConfig Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tokquant", "config.yaml")
}

// loadConfigFrom reads path. A missing file yields a zero Config; a file
// that exists but does not parse is an error.
func loadConfigFrom(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfig reads the --config file, or the default location.
func LoadConfig() (Config, error) {
	if configFile != "" {
		return loadConfigFrom(configFile)
	}
	return loadConfigFrom(configPath())
}

// applyRootConfig applies config file defaults to the global flags when the
// corresponding CLI flag was not explicitly set.
func applyRootConfig(c *cli.Command, cfg Config) {
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyQuantizeConfig(c *cli.Command, cfg Config, target *string) {
	if cfg.Target != "" && !c.IsSet("target") {
		*target = cfg.Target
	}
}

func applyBenchConfig(c *cli.Command, cfg BenchConfig, tokens, hidden *string, warmup, iters *int) {
	if len(cfg.Tokens) > 0 && !c.IsSet("tokens") {
		*tokens = joinInts(cfg.Tokens)
	}
	if len(cfg.Hidden) > 0 && !c.IsSet("hidden") {
		*hidden = joinInts(cfg.Hidden)
	}
	if cfg.Warmup != nil && !c.IsSet("warmup") {
		*warmup = *cfg.Warmup
	}
	if cfg.Iters != nil && !c.IsSet("iters") {
		*iters = *cfg.Iters
	}
}

func applyCompareConfig(c *cli.Command, cfg CompareConfig, tokens, hidden *string, seed *uint64, tolerance *float64) {
	if len(cfg.Tokens) > 0 && !c.IsSet("tokens") {
		*tokens = joinInts(cfg.Tokens)
	}
	if len(cfg.Hidden) > 0 && !c.IsSet("hidden") {
		*hidden = joinInts(cfg.Hidden)
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
	if cfg.Tolerance != nil && !c.IsSet("tolerance") {
		*tolerance = *cfg.Tolerance
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
