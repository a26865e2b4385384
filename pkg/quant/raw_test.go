package quant

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/half"
)

func TestParseDType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want DType
	}{
		{"BF16", DTypeBF16},
		{"bfloat16", DTypeBF16},
		{"fp16", DTypeF16},
		{"Half", DTypeF16},
		{"int8", DTypeI8},
		{"I8", DTypeI8},
		{"fp8", DTypeF8E4M3},
		{"float8_e4m3fn", DTypeF8E4M3},
		{"F8_E4M3", DTypeF8E4M3},
		{" f32 ", DTypeF32},
	}
	for _, tc := range tests {
		got, err := ParseDType(tc.in)
		if err != nil {
			t.Fatalf("ParseDType(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseDType(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
	if _, err := ParseDType("q4_k"); err == nil {
		t.Fatal("expected error for unknown dtype")
	}
}

func TestDTypeProperties(t *testing.T) {
	t.Parallel()
	if DTypeBF16.Size() != 2 || DTypeF32.Size() != 4 || DTypeF8E4M3.Size() != 1 || DTypeUnknown.Size() != 0 {
		t.Fatal("unexpected element sizes")
	}
	if !DTypeF16.IsWide() || DTypeI8.IsWide() || !DTypeF8E4M3.IsNarrow() || DTypeF32.IsNarrow() {
		t.Fatal("unexpected wide/narrow classification")
	}
	if got := DType(99).String(); got != "DType(99)" {
		t.Fatalf("unknown String: %q", got)
	}
}

func TestRawRoundTrip(t *testing.T) {
	t.Parallel()
	vals := []float32{1, -2, 4, 3, 0, -8}

	for _, dt := range []DType{DTypeBF16, DTypeF16, DTypeF32, DTypeI8, DTypeF8E4M3} {
		b, err := FromFloat32(dt, 2, 3, vals)
		if err != nil {
			t.Fatalf("%s FromFloat32: %v", dt, err)
		}
		if b.DType() != dt {
			t.Fatalf("%s: built %s", dt, b.DType())
		}
		raw, err := Bytes(b)
		if err != nil {
			t.Fatalf("%s Bytes: %v", dt, err)
		}
		if len(raw) != 6*dt.Size() {
			t.Fatalf("%s: got %d bytes", dt, len(raw))
		}
		back, err := FromRaw(dt, 2, 3, raw)
		if err != nil {
			t.Fatalf("%s FromRaw: %v", dt, err)
		}
		raw2, _ := Bytes(back)
		if !bytes.Equal(raw, raw2) {
			t.Fatalf("%s: bytes changed in round trip", dt)
		}
		got, err := ToFloat32(back)
		if err != nil {
			t.Fatalf("%s ToFloat32: %v", dt, err)
		}
		for i, v := range vals {
			if got[i] != v {
				t.Fatalf("%s element %d: got %v want %v", dt, i, got[i], v)
			}
		}
	}
}

func TestFromRawLittleEndian(t *testing.T) {
	t.Parallel()
	b, err := FromRaw(DTypeBF16, 1, 2, []byte{0x80, 0x3F, 0x00, 0x40})
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	m := b.(*Matrix[half.BFloat16])
	if m.Data[0].Float32() != 1 || m.Data[1].Float32() != 2 {
		t.Fatalf("got %v", m.Data)
	}

	f, err := FromRaw(DTypeF8E4M3, 1, 1, []byte{0x7E})
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	if f.(*Matrix[float8.E4M3]).Data[0].Float32() != 448 {
		t.Fatal("expected 448")
	}
}

func TestFromRawErrors(t *testing.T) {
	t.Parallel()
	if _, err := FromRaw(DTypeBF16, 2, 2, make([]byte, 7)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := FromRaw(DTypeF16, -1, 2, nil); !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
	if _, err := FromRaw(DTypeUnknown, 1, 1, []byte{0}); err == nil {
		t.Fatal("expected error for unknown dtype")
	}
	if _, err := Bytes(fakeBuffer{}); err == nil {
		t.Fatal("expected error for foreign buffer")
	}
	if _, err := FromFloat32(DTypeUnknown, 1, 1, []float32{1}); err == nil {
		t.Fatal("expected error for unknown dtype")
	}
}
