package quant

import (
	"math"

	"github.com/samcharles93/tokquant/internal/workerpool"
	"github.com/samcharles93/tokquant/pkg/float8"
)

// format describes a narrow target: the magnitude a row maximum maps onto
// and the saturating, round-half-to-even cast into the target type. The cast
// takes the quotient x/scale in float64 so it is rounded exactly once.
type format[Out Narrow] struct {
	dtype DType
	qmax  float32
	cast  func(float64) Out
}

var (
	int8Format = format[int8]{dtype: DTypeI8, qmax: Int8Max, cast: castInt8}
	e4m3Format = format[float8.E4M3]{dtype: DTypeF8E4M3, qmax: float8.MaxE4M3, cast: float8.FromFloat64}
)

func castInt8(v float64) int8 {
	if v != v {
		return 0
	}
	r := math.RoundToEven(v)
	switch {
	case r > 127:
		return 127
	case r < -128:
		return -128
	}
	return int8(r)
}

func quantizeRow[In Wide, Out Narrow](dst []Out, src []In, scale float32, f format[Out]) {
	dst = dst[:len(src)]
	s := float64(scale)
	for i, x := range src {
		dst[i] = f.cast(float64(x.Float32()) / s)
	}
}

// run is the whole per-token pipeline for one (input, target) pair. The
// scale buffer first receives the row maxima, then each row's worker turns
// its maximum into a scale and casts the row.
func run[In Wide, Out Narrow](p *workerpool.Pool, src *Matrix[In], f format[Out]) (*Matrix[Out], *Matrix[float32], error) {
	if src == nil {
		return nil, nil, ErrInvalidShape
	}
	if err := src.validate(); err != nil {
		return nil, nil, err
	}

	out := NewMatrix[Out](src.Rows, src.Cols)
	scales := NewMatrix[float32](src.Rows, 1)

	rowMaxAbs(p, scales.Data, src)
	p.ParallelFor(src.Rows, func(start, end int) {
		for r := start; r < end; r++ {
			s := scaleFor(scales.Data[r], f.qmax)
			scales.Data[r] = s
			quantizeRow(out.Row(r), src.Row(r), s, f)
		}
	})
	return out, scales, nil
}
