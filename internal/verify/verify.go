// Package verify checks the quantization kernels against an independent
// float64 reference over a grid of shapes, input formats and targets.
package verify

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/samcharles93/tokquant/internal/logger"
	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/quant"
)

// DefaultTolerance is the largest accepted relative error.
const DefaultTolerance = 0.01

// DefaultHidden covers aligned, odd and just-past-aligned row lengths.
var DefaultHidden = []int{3, 256, 257, 511, 1023, 1024, 1025, 1032, 3200, 3201, 3208, 12800}

var DefaultTokens = []int{1024, 13325}

type Case struct {
	Tokens int
	Hidden int
	Input  quant.DType
	Target quant.DType
}

func (c Case) String() string {
	return fmt.Sprintf("%s->%s %dx%d", c.Input, c.Target, c.Tokens, c.Hidden)
}

type Result struct {
	Case
	CodeErr    float64
	ScaleErr   float64
	Violations int
	Elapsed    time.Duration
	Passed     bool
}

type Config struct {
	Tokens  []int
	Hidden  []int
	Inputs  []quant.DType
	Targets []quant.DType
}

// Grid expands cfg into cases, filling empty axes with defaults.
func Grid(cfg Config) []Case {
	tokens := cfg.Tokens
	if len(tokens) == 0 {
		tokens = DefaultTokens
	}
	hidden := cfg.Hidden
	if len(hidden) == 0 {
		hidden = DefaultHidden
	}
	inputs := cfg.Inputs
	if len(inputs) == 0 {
		inputs = []quant.DType{quant.DTypeBF16, quant.DTypeF16}
	}
	targets := cfg.Targets
	if len(targets) == 0 {
		targets = []quant.DType{quant.DTypeI8, quant.DTypeF8E4M3}
	}

	cases := make([]Case, 0, len(tokens)*len(hidden)*len(inputs)*len(targets))
	for _, in := range inputs {
		for _, out := range targets {
			for _, t := range tokens {
				for _, h := range hidden {
					cases = append(cases, Case{Tokens: t, Hidden: h, Input: in, Target: out})
				}
			}
		}
	}
	return cases
}

// RandomInput fills a rows x cols matrix of dt with values uniform in
// [-0.5, 0.5).
func RandomInput(rng *rand.Rand, dt quant.DType, rows, cols int) (quant.Buffer, error) {
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = rng.Float32() - 0.5
	}
	return quant.FromFloat32(dt, rows, cols, data)
}

type Runner struct {
	Quantizer *quant.Quantizer
	Log       logger.Logger
	Tolerance float64
	Seed      uint64
}

func (r *Runner) tolerance() float64 {
	if r.Tolerance > 0 {
		return r.Tolerance
	}
	return DefaultTolerance
}

func (r *Runner) log() logger.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logger.Discard()
}

// Run executes cases in order. On cancellation it returns the results
// gathered so far together with the context error.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]Result, error) {
	log := r.log()
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.RunCase(c)
		if err != nil {
			return results, fmt.Errorf("%s: %w", c, err)
		}
		if res.Passed {
			log.Debug("case passed", "case", c.String(), "code_err", res.CodeErr, "scale_err", res.ScaleErr, "elapsed", res.Elapsed)
		} else {
			log.Warn("case failed", "case", c.String(), "code_err", res.CodeErr, "scale_err", res.ScaleErr, "violations", res.Violations)
		}
		results = append(results, res)
	}
	return results, nil
}

// RunCase quantizes one seeded random input and compares it with Reference.
func (r *Runner) RunCase(c Case) (Result, error) {
	q := r.Quantizer
	if q == nil {
		return Result{}, fmt.Errorf("verify: nil quantizer")
	}
	rng := rand.New(rand.NewPCG(r.Seed, uint64(c.Tokens)<<32|uint64(c.Hidden)))
	in, err := RandomInput(rng, c.Input, c.Tokens, c.Hidden)
	if err != nil {
		return Result{}, err
	}
	src, err := quant.ToFloat32(in)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	out, scales, err := q.Quantize(in, c.Target)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, err
	}
	got, err := quant.ToFloat32(out)
	if err != nil {
		return Result{}, err
	}

	wantCodes, wantScales, err := Reference(src, c.Tokens, c.Hidden, c.Target)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Case:       c,
		CodeErr:    RelError(toFloat64(got), wantCodes),
		ScaleErr:   RelError(toFloat64(scales.Data), wantScales),
		Violations: Violations(src, got, scales.Data, c.Hidden, c.Target),
		Elapsed:    elapsed,
	}
	tol := r.tolerance()
	res.Passed = res.CodeErr < tol && res.ScaleErr < tol && res.Violations == 0
	return res, nil
}

// Violations counts elements whose reconstruction code*scale misses the
// input by more than half a quantization step of the target format. The
// check runs in float64, where code*scale is exact.
func Violations(src, codes, scales []float32, cols int, target quant.DType) int {
	n := 0
	for i, x := range src {
		xv := float64(x)
		if math.IsNaN(xv) || math.IsInf(xv, 0) {
			continue
		}
		s := float64(scales[i/cols])
		step := 1.0
		if target == quant.DTypeF8E4M3 {
			step = float64(float8.Spacing(float32(xv / s)))
		}
		if math.Abs(float64(codes[i])*s-xv) > step*s/2 {
			n++
		}
	}
	return n
}

// Summary tallies results and returns the worst errors seen.
func Summary(results []Result) (passed, failed int, worstCode, worstScale float64) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
		worstCode = math.Max(worstCode, r.CodeErr)
		worstScale = math.Max(worstScale, r.ScaleErr)
	}
	return passed, failed, worstCode, worstScale
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
