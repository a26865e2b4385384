// Package float8 implements the FP8 E4M3FN element type used as a narrow
// quantization target.
//
// Layout: 1 sign bit, 4 exponent bits (bias 7), 3 mantissa bits. There are
// no infinities; S.1111.111 is NaN, which makes 448 the largest finite
// magnitude. Subnormals step in units of 2^-9.
package float8

import (
	"math"
	"strconv"
)

// E4M3 is an FP8 E4M3FN value stored as its raw bit pattern.
type E4M3 uint8

const (
	// MaxE4M3 is the largest finite E4M3 magnitude (S.1111.110).
	MaxE4M3 float32 = 448

	// MinSubnormalE4M3 is the smallest non-zero E4M3 magnitude, 2^-9.
	MinSubnormalE4M3 float32 = 1.0 / 512

	// MinNormalE4M3 is the smallest normal E4M3 magnitude, 2^-6.
	MinNormalE4M3 float32 = 1.0 / 64

	// NaNE4M3 is the canonical positive NaN encoding.
	NaNE4M3 E4M3 = 0x7F

	maxE4M3Bits E4M3 = 0x7E
	signBit     E4M3 = 0x80
	bias             = 7
)

var e4m3Table = func() [256]float32 {
	var tbl [256]float32
	for i := range tbl {
		tbl[i] = decode(uint8(i))
	}
	return tbl
}()

func decode(c uint8) float32 {
	exp := int(c>>3) & 0xF
	mant := float64(c & 0x7)
	var v float64
	switch {
	case exp == 0xF && mant == 7:
		return float32(math.NaN())
	case exp == 0:
		v = math.Ldexp(mant, -9)
	default:
		v = math.Ldexp(1+mant/8, exp-bias)
	}
	if c&0x80 != 0 {
		v = -v
	}
	return float32(v)
}

// FromFloat32 rounds f to the nearest E4M3 value, ties to even, saturating
// magnitudes above MaxE4M3 (including ±Inf) to ±448. Magnitudes that round
// below the smallest subnormal become a zero carrying the sign of f.
func FromFloat32(f float32) E4M3 { return FromFloat64(float64(f)) }

// FromFloat64 is FromFloat32 for a float64 input, rounded once straight from
// float64.
func FromFloat64(f float64) E4M3 {
	bits := math.Float64bits(f)
	sign := E4M3(bits>>56) & signBit
	a := math.Float64frombits(bits &^ (1 << 63))

	switch {
	case a != a:
		return sign | NaNE4M3
	case a >= float64(MaxE4M3):
		return sign | maxE4M3Bits
	case a < float64(MinNormalE4M3):
		// Subnormal codes are the mantissa in units of 2^-9; code 8 lands
		// exactly on the smallest normal, so carry needs no special case.
		m := math.RoundToEven(a * 512)
		return sign | E4M3(m)
	}

	ab := math.Float64bits(a)
	exp := int(ab>>52) - 1023
	mant := ab & (1<<52 - 1)
	top := mant >> 49
	rest := mant & (1<<49 - 1)
	const halfway = 1 << 48
	if rest > halfway || (rest == halfway && top&1 == 1) {
		top++
		if top == 8 {
			top = 0
			exp++
		}
	}
	eb := exp + bias
	if eb > 0xF || (eb == 0xF && top == 7) {
		return sign | maxE4M3Bits
	}
	return sign | E4M3(eb<<3) | E4M3(top)
}

// FromBits wraps a raw bit pattern.
func FromBits(b uint8) E4M3 { return E4M3(b) }

// Float32 widens e exactly.
func (e E4M3) Float32() float32 { return e4m3Table[e] }

// Bits returns the raw bit pattern.
func (e E4M3) Bits() uint8 { return uint8(e) }

func (e E4M3) IsNaN() bool { return e&0x7F == NaNE4M3 }

func (e E4M3) String() string {
	return strconv.FormatFloat(float64(e.Float32()), 'g', -1, 32)
}

// Spacing returns the distance between adjacent E4M3 magnitudes in the binade
// containing |v|. Rounding to E4M3 is exact to within half of it.
func Spacing(v float32) float32 {
	a := math.Abs(float64(v))
	if a < float64(MinNormalE4M3) {
		return MinSubnormalE4M3
	}
	_, exp := math.Frexp(a)
	// a lies in [2^(exp-1), 2^exp); three mantissa bits split that binade in 8.
	e := min(exp-1, 8)
	return float32(math.Ldexp(1, e-3))
}

// Slice encodes src into E4M3.
func Slice(src []float32) []E4M3 {
	out := make([]E4M3, len(src))
	for i, v := range src {
		out[i] = FromFloat32(v)
	}
	return out
}
