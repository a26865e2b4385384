package quant

import (
	"fmt"

	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/half"
)

// Element is the set of supported buffer element types.
type Element interface {
	half.BFloat16 | half.Float16 | int8 | float8.E4M3 | float32
}

// Wide is the set of input element types.
type Wide interface {
	half.BFloat16 | half.Float16
	Float32() float32
}

// Narrow is the set of quantized element types.
type Narrow interface {
	int8 | float8.E4M3
}

// Buffer is a type-erased view of a Matrix.
type Buffer interface {
	DType() DType
	Shape() []int
}

// Matrix is a dense row-major 2-D buffer.
type Matrix[T Element] struct {
	Rows, Cols int
	Data       []T
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix[T Element](rows, cols int) *Matrix[T] {
	if rows < 0 || cols < 0 {
		panic("negative dimension for matrix")
	}
	return &Matrix[T]{Rows: rows, Cols: cols, Data: make([]T, rows*cols)}
}

// NewMatrixFromData wraps data without copying. len(data) must be rows*cols.
func NewMatrixFromData[T Element](rows, cols int, data []T) (*Matrix[T], error) {
	m := &Matrix[T]{Rows: rows, Cols: cols, Data: data}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// DType reports the element encoding of T.
func (m *Matrix[T]) DType() DType {
	return dtypeOf[T]()
}

// Shape returns {Rows, Cols}.
func (m *Matrix[T]) Shape() []int {
	return []int{m.Rows, m.Cols}
}

// Row returns row i as a subslice of Data.
func (m *Matrix[T]) Row(i int) []T {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// At returns element (i, j).
func (m *Matrix[T]) At(i, j int) T {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix[T]) validate() error {
	if m.Rows < 0 || m.Cols < 0 || (m.Rows > 0 && m.Cols == 0) {
		return fmt.Errorf("%w: %dx%d", ErrInvalidShape, m.Rows, m.Cols)
	}
	want := m.Rows * m.Cols
	if m.Rows != 0 && want/m.Rows != m.Cols {
		return fmt.Errorf("%w: %dx%d overflows", ErrInvalidShape, m.Rows, m.Cols)
	}
	if len(m.Data) != want {
		return fmt.Errorf("%w: %dx%d needs %d elements, have %d", ErrShapeMismatch, m.Rows, m.Cols, want, len(m.Data))
	}
	return nil
}

func dtypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case half.BFloat16:
		return DTypeBF16
	case half.Float16:
		return DTypeF16
	case int8:
		return DTypeI8
	case float8.E4M3:
		return DTypeF8E4M3
	case float32:
		return DTypeF32
	default:
		return DTypeUnknown
	}
}
