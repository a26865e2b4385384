package quant

import (
	"math"

	"github.com/samcharles93/tokquant/internal/workerpool"
)

const (
	// lanes is the number of independent accumulators per row.
	lanes = 8

	// minSegment is the narrowest slice of a row worth a task of its own.
	minSegment = 4096
)

// RowMaxAbs writes the largest finite |x| of row i of src into dst[i].
// An all-zero row yields 0. NaN and ±Inf elements are ignored.
func RowMaxAbs[In Wide](dst []float32, src *Matrix[In]) {
	rowMaxAbs(defaultQuantizer().pool, dst, src)
}

func rowMaxAbs[In Wide](p *workerpool.Pool, dst []float32, src *Matrix[In]) {
	rows, cols := src.Rows, src.Cols
	if len(dst) < rows {
		panic("row max-abs destination too short")
	}
	if rows == 0 {
		return
	}

	segs := segmentsFor(rows, cols, p.Size())
	if segs == 1 {
		p.ParallelFor(rows, func(start, end int) {
			for r := start; r < end; r++ {
				dst[r] = maxAbs(src.Row(r))
			}
		})
		return
	}

	// Few wide rows: split each row so every worker gets a slice, then
	// combine the partial maxima per row.
	segLen := (cols + segs - 1) / segs
	partial := make([]float32, rows*segs)
	p.ParallelFor(rows*segs, func(start, end int) {
		for u := start; u < end; u++ {
			row := src.Row(u / segs)
			lo := (u % segs) * segLen
			hi := min(lo+segLen, cols)
			if lo < hi {
				partial[u] = maxAbs(row[lo:hi])
			}
		}
	})
	for r := range rows {
		m := float32(0)
		for _, v := range partial[r*segs : (r+1)*segs] {
			m = max(m, v)
		}
		dst[r] = m
	}
}

func segmentsFor(rows, cols, workers int) int {
	if rows >= workers || cols < 2*minSegment {
		return 1
	}
	segs := (workers + rows - 1) / rows
	return max(1, min(segs, cols/minSegment))
}

// maxAbs reduces row with lanes independent accumulators and a pairwise
// combine, so the result does not depend on how the tail is aligned.
func maxAbs[In Wide](row []In) float32 {
	var acc [lanes]float32
	i := 0
	for ; i+lanes <= len(row); i += lanes {
		blk := row[i : i+lanes : i+lanes]
		acc[0] = maxFinite(acc[0], blk[0].Float32())
		acc[1] = maxFinite(acc[1], blk[1].Float32())
		acc[2] = maxFinite(acc[2], blk[2].Float32())
		acc[3] = maxFinite(acc[3], blk[3].Float32())
		acc[4] = maxFinite(acc[4], blk[4].Float32())
		acc[5] = maxFinite(acc[5], blk[5].Float32())
		acc[6] = maxFinite(acc[6], blk[6].Float32())
		acc[7] = maxFinite(acc[7], blk[7].Float32())
	}
	for j := 0; i < len(row); i, j = i+1, j+1 {
		acc[j] = maxFinite(acc[j], row[i].Float32())
	}
	for w := lanes / 2; w > 0; w /= 2 {
		for k := range w {
			acc[k] = max(acc[k], acc[k+w])
		}
	}
	return acc[0]
}

func maxFinite(acc, v float32) float32 {
	a := math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
	if a > acc && a <= math.MaxFloat32 {
		return a
	}
	return acc
}
