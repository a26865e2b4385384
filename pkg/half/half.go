// Package half provides the 16-bit floating point element types accepted as
// quantization input: bfloat16 and IEEE 754 binary16.
//
// Both types are stored as their raw bit patterns. Decoding to float32 goes
// through lookup tables, so the hot loops of a row reduction cost one load per
// element.
package half

import (
	"math"
	"strconv"

	"github.com/x448/float16"
)

// BFloat16 is a brain float: the upper 16 bits of an IEEE float32.
type BFloat16 uint16

// Float16 is an IEEE 754 binary16 value.
type Float16 uint16

// bf16Table maps every BF16 bit pattern to float32.
var bf16Table = func() [1 << 16]float32 {
	var tbl [1 << 16]float32
	for i := range tbl {
		tbl[i] = math.Float32frombits(uint32(i) << 16)
	}
	return tbl
}()

// f16Table maps every F16 bit pattern to float32.
var f16Table = func() [1 << 16]float32 {
	var tbl [1 << 16]float32
	for i := range tbl {
		tbl[i] = float16.Frombits(uint16(i)).Float32()
	}
	return tbl
}()

// BFloat16FromFloat32 rounds f to the nearest bfloat16, ties to even.
// NaN stays NaN (the payload is truncated but forced non-zero).
func BFloat16FromFloat32(f float32) BFloat16 {
	u := math.Float32bits(f)
	if u&0x7FFFFFFF > 0x7F800000 {
		return BFloat16(u>>16 | 0x0040)
	}
	rnd := uint32(0x7FFF + ((u >> 16) & 1))
	return BFloat16((u + rnd) >> 16)
}

// BFloat16FromBits wraps a raw bit pattern.
func BFloat16FromBits(u uint16) BFloat16 { return BFloat16(u) }

// Float32 widens b exactly.
func (b BFloat16) Float32() float32 { return bf16Table[b] }

// Bits returns the raw bit pattern.
func (b BFloat16) Bits() uint16 { return uint16(b) }

func (b BFloat16) IsNaN() bool {
	return b&0x7F80 == 0x7F80 && b&0x007F != 0
}

func (b BFloat16) String() string {
	return formatFloat(b.Float32())
}

// Float16FromFloat32 rounds f to the nearest binary16, ties to even.
// Magnitudes above 65504 after rounding become ±Inf.
func Float16FromFloat32(f float32) Float16 {
	return Float16(float16.Fromfloat32(f).Bits())
}

// Float16FromBits wraps a raw bit pattern.
func Float16FromBits(u uint16) Float16 { return Float16(u) }

// Float32 widens h exactly.
func (h Float16) Float32() float32 { return f16Table[h] }

// Bits returns the raw bit pattern.
func (h Float16) Bits() uint16 { return uint16(h) }

func (h Float16) IsNaN() bool {
	return h&0x7C00 == 0x7C00 && h&0x03FF != 0
}

func (h Float16) String() string {
	return formatFloat(h.Float32())
}

// BFloat16Slice converts src to bfloat16, rounding each element.
func BFloat16Slice(src []float32) []BFloat16 {
	out := make([]BFloat16, len(src))
	for i, v := range src {
		out[i] = BFloat16FromFloat32(v)
	}
	return out
}

// Float16Slice converts src to binary16, rounding each element.
func Float16Slice(src []float32) []Float16 {
	out := make([]Float16, len(src))
	for i, v := range src {
		out[i] = Float16FromFloat32(v)
	}
	return out
}

// Float is satisfied by both 16-bit element types.
type Float interface {
	BFloat16 | Float16
	Float32() float32
}

// Widen decodes src into dst, which must be at least as long.
func Widen[T Float](dst []float32, src []T) {
	if len(dst) < len(src) {
		panic("half: destination too short")
	}
	for i, v := range src {
		dst[i] = v.Float32()
	}
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
