package quant

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/half"
)

// FromRaw decodes little-endian element bytes into a typed matrix.
// raw must hold exactly rows*cols elements of dt.
func FromRaw(dt DType, rows, cols int, raw []byte) (Buffer, error) {
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("raw buffer: unsupported dtype %s", dt)
	}
	if rows < 0 || cols < 0 || (rows > 0 && cols == 0) {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidShape, rows, cols)
	}
	n := rows * cols
	if rows != 0 && n/rows != cols {
		return nil, fmt.Errorf("%w: %dx%d overflows", ErrInvalidShape, rows, cols)
	}
	if len(raw) != n*size {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, have %d", ErrShapeMismatch, dt, rows, cols, n*size, len(raw))
	}

	switch dt {
	case DTypeBF16:
		return decodeRaw(rows, cols, raw, 2, func(b []byte) half.BFloat16 {
			return half.BFloat16FromBits(binary.LittleEndian.Uint16(b))
		}), nil
	case DTypeF16:
		return decodeRaw(rows, cols, raw, 2, func(b []byte) half.Float16 {
			return half.Float16FromBits(binary.LittleEndian.Uint16(b))
		}), nil
	case DTypeF32:
		return decodeRaw(rows, cols, raw, 4, func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		}), nil
	case DTypeI8:
		return decodeRaw(rows, cols, raw, 1, func(b []byte) int8 { return int8(b[0]) }), nil
	case DTypeF8E4M3:
		return decodeRaw(rows, cols, raw, 1, func(b []byte) float8.E4M3 { return float8.FromBits(b[0]) }), nil
	default:
		return nil, fmt.Errorf("raw buffer: unsupported dtype %s", dt)
	}
}

func decodeRaw[T Element](rows, cols int, raw []byte, size int, dec func([]byte) T) *Matrix[T] {
	m := NewMatrix[T](rows, cols)
	for i := range m.Data {
		m.Data[i] = dec(raw[i*size : i*size+size])
	}
	return m
}

// Bytes encodes the elements of b little-endian, row-major.
func Bytes(b Buffer) ([]byte, error) {
	switch m := b.(type) {
	case *Matrix[half.BFloat16]:
		return encodeRaw(m.Data, 2, func(dst []byte, v half.BFloat16) {
			binary.LittleEndian.PutUint16(dst, v.Bits())
		}), nil
	case *Matrix[half.Float16]:
		return encodeRaw(m.Data, 2, func(dst []byte, v half.Float16) {
			binary.LittleEndian.PutUint16(dst, v.Bits())
		}), nil
	case *Matrix[float32]:
		return encodeRaw(m.Data, 4, func(dst []byte, v float32) {
			binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
		}), nil
	case *Matrix[int8]:
		return encodeRaw(m.Data, 1, func(dst []byte, v int8) { dst[0] = byte(v) }), nil
	case *Matrix[float8.E4M3]:
		return encodeRaw(m.Data, 1, func(dst []byte, v float8.E4M3) { dst[0] = v.Bits() }), nil
	default:
		return nil, fmt.Errorf("raw buffer: unsupported buffer %T", b)
	}
}

func encodeRaw[T Element](data []T, size int, enc func([]byte, T)) []byte {
	out := make([]byte, len(data)*size)
	for i, v := range data {
		enc(out[i*size:i*size+size], v)
	}
	return out
}

// ToFloat32 widens every element of b. Quantized codes are returned as their
// numeric value, without applying any scale.
func ToFloat32(b Buffer) ([]float32, error) {
	switch m := b.(type) {
	case *Matrix[half.BFloat16]:
		return widen(m.Data, half.BFloat16.Float32), nil
	case *Matrix[half.Float16]:
		return widen(m.Data, half.Float16.Float32), nil
	case *Matrix[float32]:
		return append([]float32(nil), m.Data...), nil
	case *Matrix[int8]:
		return widen(m.Data, func(v int8) float32 { return float32(v) }), nil
	case *Matrix[float8.E4M3]:
		return widen(m.Data, float8.E4M3.Float32), nil
	default:
		return nil, fmt.Errorf("raw buffer: unsupported buffer %T", b)
	}
}

func widen[T Element](data []T, f func(T) float32) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = f(v)
	}
	return out
}

// FromFloat32 rounds data into a rows x cols matrix of dt.
func FromFloat32(dt DType, rows, cols int, data []float32) (Buffer, error) {
	src, err := NewMatrixFromData(rows, cols, data)
	if err != nil {
		return nil, err
	}
	switch dt {
	case DTypeBF16:
		return &Matrix[half.BFloat16]{Rows: rows, Cols: cols, Data: half.BFloat16Slice(src.Data)}, nil
	case DTypeF16:
		return &Matrix[half.Float16]{Rows: rows, Cols: cols, Data: half.Float16Slice(src.Data)}, nil
	case DTypeF32:
		return &Matrix[float32]{Rows: rows, Cols: cols, Data: append([]float32(nil), src.Data...)}, nil
	case DTypeF8E4M3:
		return &Matrix[float8.E4M3]{Rows: rows, Cols: cols, Data: float8.Slice(src.Data)}, nil
	case DTypeI8:
		out := NewMatrix[int8](rows, cols)
		for i, v := range src.Data {
			out.Data[i] = castInt8(float64(v))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("from float32: unsupported dtype %s", dt)
	}
}
