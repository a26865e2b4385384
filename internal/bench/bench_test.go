package bench

import (
	"context"
	"errors"
	"testing"

	"github.com/samcharles93/tokquant/pkg/quant"
)

func TestBytes(t *testing.T) {
	t.Parallel()
	// 4x8 BF16 in, I8 out: 64 + 32 + 16 bytes of scales.
	if got := Bytes(4, 8, quant.DTypeBF16, quant.DTypeI8); got != 112 {
		t.Fatalf("expected 112 bytes, got %d", got)
	}
}

func TestRunSmallGrid(t *testing.T) {
	t.Parallel()
	q := quant.New(quant.Options{Workers: 2})
	defer q.Close()

	results, err := Run(context.Background(), q, Config{
		Tokens: []int{3},
		Hidden: []int{16, 33},
		Inputs: []quant.DType{quant.DTypeBF16, quant.DTypeF16},
		Warmup: 1,
		Iters:  2,
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2*2*2 {
		t.Fatalf("expected 8 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Iters != 2 {
			t.Fatalf("expected 2 iters, got %d", r.Iters)
		}
		if r.Min > r.Mean {
			t.Fatalf("min %v exceeds mean %v", r.Min, r.Mean)
		}
		if r.Tokens != 3 {
			t.Fatalf("expected 3 tokens, got %d", r.Tokens)
		}
	}
	if results[0].Input != "BF16" || results[0].Target != "I8" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	q := quant.New(quant.Options{Workers: 1})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, q, Config{Tokens: []int{1}, Hidden: []int{4}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunRejectsUnsupportedInput(t *testing.T) {
	t.Parallel()
	q := quant.New(quant.Options{Workers: 1})
	defer q.Close()

	_, err := Run(context.Background(), q, Config{
		Tokens: []int{1},
		Hidden: []int{4},
		Inputs: []quant.DType{quant.DTypeF32},
		Warmup: 0,
		Iters:  1,
	}, nil)
	if !errors.Is(err, quant.ErrUnsupportedInputType) {
		t.Fatalf("expected ErrUnsupportedInputType, got %v", err)
	}
}

func TestDetectHost(t *testing.T) {
	t.Parallel()
	h := DetectHost()
	if h.Cores < 1 || h.GOMAXPROCS < 1 {
		t.Fatalf("unexpected core counts %+v", h)
	}
	if h.CPU == "" || h.Arch == "" {
		t.Fatalf("expected cpu and arch, got %+v", h)
	}
}
