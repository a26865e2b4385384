package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/pkg/quant"
)

func TestLoadConfigFromMissingFile(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfigFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if cfg.Workers != nil || cfg.Target != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadConfigFrom(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
workers: 6
target: fp8
log_level: debug
server_address: 0.0.0.0:9000
bench:
  tokens: [128, 256]
  iters: 5
compare:
  hidden: [3, 257]
  seed: 9
  tolerance: 0.005
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadConfigFrom(path)
	if err != nil {
		t.Fatalf("loadConfigFrom: %v", err)
	}
	if cfg.Workers == nil || *cfg.Workers != 6 {
		t.Fatalf("workers: got %v", cfg.Workers)
	}
	if cfg.Target != "fp8" || cfg.LogLevel != "debug" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Bench.Tokens) != 2 || cfg.Bench.Iters == nil || *cfg.Bench.Iters != 5 || cfg.Bench.Warmup != nil {
		t.Fatalf("unexpected bench config %+v", cfg.Bench)
	}
	if cfg.Compare.Seed == nil || *cfg.Compare.Seed != 9 || *cfg.Compare.Tolerance != 0.005 {
		t.Fatalf("unexpected compare config %+v", cfg.Compare)
	}
}

func TestLoadConfigFromInvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("workers: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadConfigFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyBenchConfigRespectsFlags(t *testing.T) {
	t.Parallel()
	warmupCfg, itersCfg := 2, 11
	cfg := BenchConfig{Tokens: []int{8, 16}, Warmup: &warmupCfg, Iters: &itersCfg}

	var (
		tokens, hidden string
		warmup, iters  int
	)
	cmd := &cli.Command{
		Name: "bench",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tokens", Value: "1", Destination: &tokens},
			&cli.StringFlag{Name: "hidden", Value: "4", Destination: &hidden},
			&cli.IntFlag{Name: "warmup", Value: 1, Destination: &warmup},
			&cli.IntFlag{Name: "iters", Value: 1, Destination: &iters},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			applyBenchConfig(c, cfg, &tokens, &hidden, &warmup, &iters)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"bench", "--warmup", "7"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if warmup != 7 {
		t.Fatalf("explicit flag should win, got warmup=%d", warmup)
	}
	if iters != 11 || tokens != "8,16" {
		t.Fatalf("config should fill unset flags, got iters=%d tokens=%q", iters, tokens)
	}
	if hidden != "4" {
		t.Fatalf("unset config key should keep flag default, got %q", hidden)
	}
}

func TestParseInts(t *testing.T) {
	t.Parallel()
	got, err := parseInts(" 3, 256 ,12800")
	if err != nil {
		t.Fatalf("parseInts: %v", err)
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 256 || got[2] != 12800 {
		t.Fatalf("unexpected %v", got)
	}
	if got, err := parseInts(""); err != nil || got != nil {
		t.Fatalf("empty list: got %v, %v", got, err)
	}
	for _, bad := range []string{"1,x", "0", "-4"} {
		if _, err := parseInts(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if joinInts([]int{1, 2}) != "1,2" {
		t.Fatal("joinInts")
	}
}

func TestGridConfig(t *testing.T) {
	t.Parallel()
	cfg, err := gridConfig("4", "3,5", "bf16", "fp8")
	if err != nil {
		t.Fatalf("gridConfig: %v", err)
	}
	if len(cfg.Hidden) != 2 || cfg.Inputs[0] != quant.DTypeBF16 || cfg.Targets[0] != quant.DTypeF8E4M3 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if _, err := gridConfig("4", "3", "q4", "int8"); err == nil {
		t.Fatal("expected error for unknown dtype")
	}
}
