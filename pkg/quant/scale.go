package quant

import "github.com/samcharles93/tokquant/pkg/float8"

// MinScale is the scale given to rows whose maximum is zero (or so small the
// quotient underflows it), so code * scale never divides by zero downstream.
const MinScale float32 = 1e-10

// Int8Max is the largest int8 code a scale maps onto. The range is kept
// symmetric; -128 is only reached through saturation.
const Int8Max float32 = 127

// QMax returns the magnitude a row maximum is mapped onto for target.
func QMax(target DType) (float32, bool) {
	switch target {
	case DTypeI8:
		return Int8Max, true
	case DTypeF8E4M3:
		return float8.MaxE4M3, true
	default:
		return 0, false
	}
}

// ScaleFor converts a row maximum into that row's scale for target.
// It panics if target is not a narrow format.
func ScaleFor(maxAbs float32, target DType) float32 {
	qmax, ok := QMax(target)
	if !ok {
		panic("quant: ScaleFor on non-narrow target " + target.String())
	}
	return scaleFor(maxAbs, qmax)
}

func scaleFor(maxAbs, qmax float32) float32 {
	s := maxAbs / qmax
	if !(s >= MinScale) {
		return MinScale
	}
	return s
}
