package quant

import (
	"fmt"
	"sync"

	"github.com/samcharles93/tokquant/internal/workerpool"
	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/half"
)

// Options configures a Quantizer.
type Options struct {
	// Workers is the number of row workers. <= 0 means GOMAXPROCS.
	Workers int
}

// Quantizer owns a worker pool and runs quantization calls on it. Calls are
// independent and may run concurrently. The package-level functions use a
// shared Quantizer created on first use.
type Quantizer struct {
	pool *workerpool.Pool
}

// New creates a Quantizer with its own worker pool.
func New(opts Options) *Quantizer {
	return &Quantizer{pool: workerpool.New(opts.Workers)}
}

// Workers returns the size of the worker pool.
func (q *Quantizer) Workers() int {
	return q.pool.Size()
}

// Close stops the worker pool. Later calls still work, sequentially.
func (q *Quantizer) Close() {
	q.pool.Close()
}

var (
	sharedOnce      sync.Once
	sharedQuantizer *Quantizer
)

func defaultQuantizer() *Quantizer {
	sharedOnce.Do(func() {
		sharedQuantizer = New(Options{})
	})
	return sharedQuantizer
}

type route struct {
	in, out DType
}

type routeFunc func(p *workerpool.Pool, op string, in Buffer) (Buffer, *Matrix[float32], error)

// routes is the dispatch table: one entry per (input, target) pair, all
// bound to the same generic pipeline.
var routes = map[route]routeFunc{
	{DTypeBF16, DTypeI8}:     bind[half.BFloat16](int8Format),
	{DTypeF16, DTypeI8}:      bind[half.Float16](int8Format),
	{DTypeBF16, DTypeF8E4M3}: bind[half.BFloat16](e4m3Format),
	{DTypeF16, DTypeF8E4M3}:  bind[half.Float16](e4m3Format),
}

func bind[In Wide, Out Narrow](f format[Out]) routeFunc {
	return func(p *workerpool.Pool, op string, in Buffer) (Buffer, *Matrix[float32], error) {
		m, ok := in.(*Matrix[In])
		if !ok {
			// A foreign Buffer implementation claiming a wide dtype.
			return nil, nil, &UnsupportedInputTypeError{Op: op, DType: in.DType()}
		}
		out, scales, err := run(p, m, f)
		if err != nil {
			return nil, nil, err
		}
		return out, scales, nil
	}
}

// SupportedRoutes lists the (input, target) pairs the dispatch table serves.
func SupportedRoutes() [][2]DType {
	return [][2]DType{
		{DTypeBF16, DTypeI8},
		{DTypeF16, DTypeI8},
		{DTypeBF16, DTypeF8E4M3},
		{DTypeF16, DTypeF8E4M3},
	}
}

// Quantize quantizes every row of in to target (DTypeI8 or DTypeF8E4M3).
// The returned Buffer is a *Matrix[int8] or *Matrix[float8.E4M3] with the
// shape of in; scales has shape (rows, 1).
func (q *Quantizer) Quantize(in Buffer, target DType) (Buffer, *Matrix[float32], error) {
	return q.quantize("Quantize", in, target)
}

func (q *Quantizer) quantize(op string, in Buffer, target DType) (Buffer, *Matrix[float32], error) {
	if in == nil {
		return nil, nil, &UnsupportedInputTypeError{Op: op, DType: DTypeUnknown}
	}
	if !target.IsNarrow() {
		return nil, nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedTarget, target)
	}
	fn, ok := routes[route{in: in.DType(), out: target}]
	if !ok {
		return nil, nil, &UnsupportedInputTypeError{Op: op, DType: in.DType()}
	}
	return fn(q.pool, op, in)
}

// QuantizeInt8 quantizes a BF16 or F16 buffer to int8 with one scale per row.
func (q *Quantizer) QuantizeInt8(in Buffer) (*Matrix[int8], *Matrix[float32], error) {
	out, scales, err := q.quantize("QuantizeInt8", in, DTypeI8)
	if err != nil {
		return nil, nil, err
	}
	return out.(*Matrix[int8]), scales, nil
}

// QuantizeFloat8 quantizes a BF16 or F16 buffer to FP8 E4M3 with one scale
// per row.
func (q *Quantizer) QuantizeFloat8(in Buffer) (*Matrix[float8.E4M3], *Matrix[float32], error) {
	out, scales, err := q.quantize("QuantizeFloat8", in, DTypeF8E4M3)
	if err != nil {
		return nil, nil, err
	}
	return out.(*Matrix[float8.E4M3]), scales, nil
}

// QuantizeBF16Int8 quantizes a BF16 matrix to int8 on q's pool.
func (q *Quantizer) QuantizeBF16Int8(in *Matrix[half.BFloat16]) (*Matrix[int8], *Matrix[float32], error) {
	return run(q.pool, in, int8Format)
}

// QuantizeF16Int8 quantizes an F16 matrix to int8 on q's pool.
func (q *Quantizer) QuantizeF16Int8(in *Matrix[half.Float16]) (*Matrix[int8], *Matrix[float32], error) {
	return run(q.pool, in, int8Format)
}

// QuantizeBF16Float8 quantizes a BF16 matrix to FP8 E4M3 on q's pool.
func (q *Quantizer) QuantizeBF16Float8(in *Matrix[half.BFloat16]) (*Matrix[float8.E4M3], *Matrix[float32], error) {
	return run(q.pool, in, e4m3Format)
}

// QuantizeF16Float8 quantizes an F16 matrix to FP8 E4M3 on q's pool.
func (q *Quantizer) QuantizeF16Float8(in *Matrix[half.Float16]) (*Matrix[float8.E4M3], *Matrix[float32], error) {
	return run(q.pool, in, e4m3Format)
}

// Quantize runs Quantizer.Quantize on the shared pool.
func Quantize(in Buffer, target DType) (Buffer, *Matrix[float32], error) {
	return defaultQuantizer().Quantize(in, target)
}

// QuantizeInt8 runs Quantizer.QuantizeInt8 on the shared pool.
func QuantizeInt8(in Buffer) (*Matrix[int8], *Matrix[float32], error) {
	return defaultQuantizer().QuantizeInt8(in)
}

// QuantizeFloat8 runs Quantizer.QuantizeFloat8 on the shared pool.
func QuantizeFloat8(in Buffer) (*Matrix[float8.E4M3], *Matrix[float32], error) {
	return defaultQuantizer().QuantizeFloat8(in)
}

// QuantizeBF16Int8 skips the input-format check for callers holding BF16.
func QuantizeBF16Int8(in *Matrix[half.BFloat16]) (*Matrix[int8], *Matrix[float32], error) {
	return defaultQuantizer().QuantizeBF16Int8(in)
}

// QuantizeF16Int8 skips the input-format check for callers holding F16.
func QuantizeF16Int8(in *Matrix[half.Float16]) (*Matrix[int8], *Matrix[float32], error) {
	return defaultQuantizer().QuantizeF16Int8(in)
}

// QuantizeBF16Float8 skips the input-format check for callers holding BF16.
func QuantizeBF16Float8(in *Matrix[half.BFloat16]) (*Matrix[float8.E4M3], *Matrix[float32], error) {
	return defaultQuantizer().QuantizeBF16Float8(in)
}

// QuantizeF16Float8 skips the input-format check for callers holding F16.
func QuantizeF16Float8(in *Matrix[half.Float16]) (*Matrix[float8.E4M3], *Matrix[float32], error) {
	return defaultQuantizer().QuantizeF16Float8(in)
}
