package verify

import (
	"fmt"
	"math"

	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/quant"
)

// Reference quantizes widened input in float64 and returns the decoded code
// values and per-row scales. It shares no code with the kernels beyond the
// constants that define the formats.
func Reference(src []float32, rows, cols int, target quant.DType) (codes, scales []float64, err error) {
	if len(src) != rows*cols {
		return nil, nil, fmt.Errorf("reference: %d elements for %dx%d", len(src), rows, cols)
	}
	var (
		qmax  float64
		round func(float64) float64
	)
	switch target {
	case quant.DTypeI8:
		qmax, round = float64(quant.Int8Max), roundInt8
	case quant.DTypeF8E4M3:
		qmax, round = float64(float8.MaxE4M3), roundE4M3
	default:
		return nil, nil, fmt.Errorf("reference: %w: %s", quant.ErrUnsupportedTarget, target)
	}

	codes = make([]float64, len(src))
	scales = make([]float64, rows)
	for r := range rows {
		row := src[r*cols : (r+1)*cols]
		var m float64
		for _, v := range row {
			a := math.Abs(float64(v))
			if !math.IsInf(a, 0) && !math.IsNaN(a) && a > m {
				m = a
			}
		}
		s := m / qmax
		if !(s >= float64(quant.MinScale)) {
			s = float64(quant.MinScale)
		}
		scales[r] = s
		for c, v := range row {
			codes[r*cols+c] = round(float64(v) / s)
		}
	}
	return codes, scales, nil
}

func roundInt8(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-128, math.Min(127, math.RoundToEven(v)))
}

func roundE4M3(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	a := math.Abs(v)
	maxV := float64(float8.MaxE4M3)
	var q float64
	switch {
	case a >= maxV:
		q = maxV
	case a < float64(float8.MinNormalE4M3):
		q = math.RoundToEven(a*512) / 512
	default:
		_, exp := math.Frexp(a)
		step := math.Ldexp(1, exp-4)
		q = math.Min(math.RoundToEven(a/step)*step, maxV)
	}
	return math.Copysign(q, v)
}

// RelError is sum|got-want| / sum|want|. Two all-zero inputs compare equal;
// a nonzero difference against an all-zero reference is +Inf.
func RelError(got, want []float64) float64 {
	var diff, base float64
	for i := range want {
		if math.IsNaN(want[i]) && math.IsNaN(got[i]) {
			continue
		}
		diff += math.Abs(got[i] - want[i])
		base += math.Abs(want[i])
	}
	if base == 0 {
		if diff == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return diff / base
}
