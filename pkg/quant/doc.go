// Package quant implements per-token dynamic quantization of activation
// matrices.
//
// Each row (token) of a BF16 or F16 matrix is quantized independently: the
// row's maximum absolute value is mapped onto the largest magnitude of the
// target format, giving one float32 scale per row, and every element is
// divided by that scale, rounded half to even and saturated into int8 or
// FP8 E4M3. Dequantization is a single multiply, code * scale.
//
// The pipeline is
//
//	RowMaxAbs -> ScaleFor -> quantize-cast
//
// and it is the same generic code for every (input, target) pair; the
// dispatch table only picks type parameters.
//
//	q, scales, err := quant.QuantizeInt8(in)
//	if errors.Is(err, quant.ErrUnsupportedInputType) {
//		// in was not BF16/F16
//	}
package quant
