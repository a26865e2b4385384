package quant

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedInputType is matched by every UnsupportedInputTypeError.
	ErrUnsupportedInputType = errors.New("unsupported input type")
	ErrUnsupportedTarget    = errors.New("unsupported quantization target")
	ErrInvalidShape         = errors.New("invalid shape")
	ErrShapeMismatch        = errors.New("buffer size does not match shape")
)

// UnsupportedInputTypeError reports an input buffer whose element format is
// neither BF16 nor F16. Format, when set, names a foreign format (a file's
// dtype string, say) that has no DType.
type UnsupportedInputTypeError struct {
	Op     string
	DType  DType
	Format string
}

func (e *UnsupportedInputTypeError) Error() string {
	got := e.DType.String()
	if e.Format != "" {
		got = e.Format
	}
	return fmt.Sprintf("%s expects BF16/F16, got %s", e.Op, got)
}

func (e *UnsupportedInputTypeError) Unwrap() error {
	return ErrUnsupportedInputType
}
