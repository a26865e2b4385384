// Package bench measures quantization throughput over a grid of shapes.
package bench

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/samcharles93/tokquant/internal/logger"
	"github.com/samcharles93/tokquant/pkg/quant"
)

type Config struct {
	Tokens  []int
	Hidden  []int
	Inputs  []quant.DType
	Targets []quant.DType
	Warmup  int
	Iters   int
	Seed    uint64
}

var (
	DefaultTokens = []int{1024, 13325}
	DefaultHidden = []int{1024, 3200, 12800}
)

const (
	DefaultWarmup = 3
	DefaultIters  = 100
)

func (c Config) withDefaults() Config {
	if len(c.Tokens) == 0 {
		c.Tokens = DefaultTokens
	}
	if len(c.Hidden) == 0 {
		c.Hidden = DefaultHidden
	}
	if len(c.Inputs) == 0 {
		c.Inputs = []quant.DType{quant.DTypeBF16}
	}
	if len(c.Targets) == 0 {
		c.Targets = []quant.DType{quant.DTypeI8, quant.DTypeF8E4M3}
	}
	if c.Warmup < 0 {
		c.Warmup = 0
	}
	if c.Iters <= 0 {
		c.Iters = DefaultIters
	}
	return c
}

// Result is the timing for one (shape, input, target) combination.
type Result struct {
	Tokens  int           `json:"tokens"`
	Hidden  int           `json:"hidden"`
	Input   string        `json:"input"`
	Target  string        `json:"target"`
	Iters   int           `json:"iters"`
	Mean    time.Duration `json:"mean_ns"`
	Min     time.Duration `json:"min_ns"`
	ElemsPS float64       `json:"elements_per_sec"`
	GBps    float64       `json:"gb_per_sec"`
}

// Bytes is the memory traffic of one call: the input read once plus codes
// and scales written.
func Bytes(tokens, hidden int, in, out quant.DType) int64 {
	n := int64(tokens) * int64(hidden)
	return n*int64(in.Size()) + n*int64(out.Size()) + int64(tokens)*4
}

// Run benchmarks every combination in cfg. Cancellation is checked between
// iterations.
func Run(ctx context.Context, q *quant.Quantizer, cfg Config, log logger.Logger) ([]Result, error) {
	if q == nil {
		return nil, fmt.Errorf("bench: nil quantizer")
	}
	if log == nil {
		log = logger.Discard()
	}
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewPCG(cfg.Seed, 0x5eed))

	var results []Result
	for _, in := range cfg.Inputs {
		for _, tokens := range cfg.Tokens {
			for _, hidden := range cfg.Hidden {
				buf, err := randomInput(rng, in, tokens, hidden)
				if err != nil {
					return results, err
				}
				for _, target := range cfg.Targets {
					res, err := runOne(ctx, q, buf, target, cfg.Warmup, cfg.Iters)
					if err != nil {
						return results, err
					}
					log.Info("benchmark",
						"input", res.Input,
						"target", res.Target,
						"tokens", tokens,
						"hidden", hidden,
						"mean", res.Mean,
						"gbps", res.GBps,
					)
					results = append(results, res)
				}
			}
		}
	}
	return results, nil
}

func runOne(ctx context.Context, q *quant.Quantizer, in quant.Buffer, target quant.DType, warmup, iters int) (Result, error) {
	for range warmup {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if _, _, err := q.Quantize(in, target); err != nil {
			return Result{}, err
		}
	}

	var total, best time.Duration
	for i := range iters {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := time.Now()
		if _, _, err := q.Quantize(in, target); err != nil {
			return Result{}, err
		}
		d := time.Since(start)
		total += d
		if i == 0 || d < best {
			best = d
		}
	}

	shape := in.Shape()
	tokens, hidden := shape[0], shape[1]
	mean := total / time.Duration(iters)
	res := Result{
		Tokens: tokens,
		Hidden: hidden,
		Input:  in.DType().String(),
		Target: target.String(),
		Iters:  iters,
		Mean:   mean,
		Min:    best,
	}
	if secs := mean.Seconds(); secs > 0 {
		res.ElemsPS = float64(tokens) * float64(hidden) / secs
		res.GBps = float64(Bytes(tokens, hidden, in.DType(), target)) / secs / 1e9
	}
	return res, nil
}

func randomInput(rng *rand.Rand, dt quant.DType, rows, cols int) (quant.Buffer, error) {
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = rng.Float32() - 0.5
	}
	return quant.FromFloat32(dt, rows, cols, data)
}
