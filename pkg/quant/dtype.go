package quant

import (
	"fmt"
	"strings"
)

// DType identifies a buffer element encoding.
// Keep these stable; add new values only.
type DType uint32

const (
	DTypeUnknown DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeI8
	DTypeF8E4M3
)

// String returns the safetensors name of the encoding.
func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	case DTypeI8:
		return "I8"
	case DTypeF8E4M3:
		return "F8_E4M3"
	default:
		return fmt.Sprintf("DType(%d)", uint32(d))
	}
}

// Size returns the element size in bytes, or 0 for an unknown encoding.
func (d DType) Size() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	case DTypeI8, DTypeF8E4M3:
		return 1
	default:
		return 0
	}
}

// IsWide reports whether d is accepted as quantization input.
func (d DType) IsWide() bool {
	return d == DTypeBF16 || d == DTypeF16
}

// IsNarrow reports whether d is a quantization target.
func (d DType) IsNarrow() bool {
	return d == DTypeI8 || d == DTypeF8E4M3
}

// ParseDType accepts safetensors names and the usual framework aliases,
// case-insensitively.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f32", "fp32", "float32", "float":
		return DTypeF32, nil
	case "f16", "fp16", "float16", "half":
		return DTypeF16, nil
	case "bf16", "bfloat16":
		return DTypeBF16, nil
	case "i8", "int8":
		return DTypeI8, nil
	case "f8_e4m3", "f8e4m3", "fp8", "float8", "float8_e4m3fn", "e4m3", "fp8_e4m3":
		return DTypeF8E4M3, nil
	default:
		return DTypeUnknown, fmt.Errorf("unknown dtype %q", s)
	}
}
