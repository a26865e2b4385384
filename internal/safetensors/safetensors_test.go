package safetensors

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/half"
	"github.com/samcharles93/tokquant/pkg/quant"
)

// writeRaw writes a file with a hand-built header and payload.
func writeRaw(t *testing.T, path string, header map[string]any, payload []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf.Write(lenBuf[:])
	buf.Write(headerBytes)
	buf.Write(payload)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func openTemp(t *testing.T, path string) *File {
	t.Helper()
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestOpenNonexistentFile(t *testing.T) {
	t.Parallel()
	if _, err := Open("/nonexistent/file.safetensors"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestOpenTruncatedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "truncated.safetensors")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestOpenHugeHeaderLength(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "huge.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<40)
	if err := os.WriteFile(path, lenBuf[:], 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}
}

func TestOpenInvalidJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "invalid.safetensors")
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 12)
	buf.Write(lenBuf[:])
	buf.WriteString("not valid js")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for invalid JSON header")
	}
}

func TestInvalidDataOffsets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad_offsets.safetensors")
	writeRaw(t, path, map[string]any{
		"bad": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
	}, nil)
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for invalid data_offsets")
	}
}

func TestMetadataSeparated(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "metadata.safetensors")
	writeRaw(t, path, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"x":            map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int64{0, 16}},
	}, make([]byte, 16))

	sf := openTemp(t, path)
	if len(sf.Tensors) != 1 {
		t.Fatalf("expected 1 tensor, got %d", len(sf.Tensors))
	}
	if sf.Metadata["format"] != "pt" {
		t.Fatalf("expected metadata format=pt, got %v", sf.Metadata)
	}
}

// readFloats widens a tensor through ReadMatrix.
func readFloats(t *testing.T, sf *File, name string) []float32 {
	t.Helper()
	m, err := sf.ReadMatrix(name)
	if err != nil {
		t.Fatalf("ReadMatrix %s: %v", name, err)
	}
	v, err := quant.ToFloat32(m)
	if err != nil {
		t.Fatalf("ToFloat32 %s: %v", name, err)
	}
	return v
}

func TestReadMatrixDtypes(t *testing.T) {
	t.Parallel()
	payload := make([]byte, 0, 16+4+2)
	payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(1))
	payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(-2))
	payload = binary.LittleEndian.AppendUint16(payload, 0x3F80) // bf16 1.0
	payload = binary.LittleEndian.AppendUint16(payload, 0x4000) // bf16 2.0
	payload = binary.LittleEndian.AppendUint16(payload, 0x3C00) // f16 1.0

	path := filepath.Join(t.TempDir(), "mixed.safetensors")
	writeRaw(t, path, map[string]any{
		"f32":  map[string]any{"dtype": "F32", "shape": []int{2}, "data_offsets": []int64{0, 8}},
		"bf16": map[string]any{"dtype": "BF16", "shape": []int{2}, "data_offsets": []int64{8, 12}},
		"f16":  map[string]any{"dtype": "F16", "shape": []int{1}, "data_offsets": []int64{12, 14}},
	}, payload)
	sf := openTemp(t, path)

	tests := []struct {
		name string
		want []float32
	}{
		{"f32", []float32{1, -2}},
		{"bf16", []float32{1, 2}},
		{"f16", []float32{1}},
	}
	for _, tt := range tests {
		got := readFloats(t, sf, tt.name)
		if len(got) != len(tt.want) {
			t.Fatalf("%s: expected %d elements, got %d", tt.name, len(tt.want), len(got))
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("%s[%d]: expected %v, got %v", tt.name, i, tt.want[i], got[i])
			}
		}
	}

	if names := sf.Names(); strings.Join(names, ",") != "bf16,f16,f32" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestReadTensorErrors(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "errs.safetensors")
	writeRaw(t, path, map[string]any{
		"i32":   map[string]any{"dtype": "I32", "shape": []int{2}, "data_offsets": []int64{0, 8}},
		"short": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int64{0, 8}},
		"past":  map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int64{0, 64}},
	}, make([]byte, 8))
	sf := openTemp(t, path)

	if _, _, err := sf.ReadTensor("missing"); err == nil {
		t.Fatal("expected error for missing tensor")
	}
	if _, err := sf.ReadMatrix("i32"); err == nil {
		t.Fatal("expected error for unsupported dtype")
	}
	if _, err := sf.ReadMatrix("short"); !errors.Is(err, quant.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if _, _, err := sf.ReadTensor("past"); err == nil {
		t.Fatal("expected error for payload past end of file")
	}
}

func TestMatrixShape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape      []int
		rows, cols int
		wantErr    bool
	}{
		{shape: []int{5}, rows: 1, cols: 5},
		{shape: []int{3, 7}, rows: 3, cols: 7},
		{shape: []int{2, 4, 8}, rows: 8, cols: 8},
		{shape: nil, wantErr: true},
		{shape: []int{2, 0}, wantErr: true},
	}
	for _, tt := range tests {
		rows, cols, err := MatrixShape(tt.shape)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%v: expected error", tt.shape)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%v: %v", tt.shape, err)
		}
		if rows != tt.rows || cols != tt.cols {
			t.Fatalf("%v: expected %dx%d, got %dx%d", tt.shape, tt.rows, tt.cols, rows, cols)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	t.Parallel()
	in, err := quant.FromFloat32(quant.DTypeBF16, 2, 3, []float32{1, -2, 0.5, 3, 0, -8})
	if err != nil {
		t.Fatalf("FromFloat32: %v", err)
	}
	q, scales, err := quant.QuantizeFloat8(in)
	if err != nil {
		t.Fatalf("QuantizeFloat8: %v", err)
	}

	w := NewWriter()
	w.SetMetadata("quantization", "per_token")
	if err := w.AddBufferShape("act", in, []int{1, 2, 3}); err != nil {
		t.Fatalf("AddBufferShape: %v", err)
	}
	if err := w.AddBuffer("act.q", q); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddBuffer("act.scale", scales); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddBuffer("act.q", q); err == nil {
		t.Fatal("expected duplicate name error")
	}

	path := filepath.Join(t.TempDir(), "out.safetensors")
	if err := w.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sf := openTemp(t, path)
	if sf.DataStart%headerAlign != 0 {
		t.Fatalf("data start %d not aligned", sf.DataStart)
	}
	if sf.Metadata["quantization"] != "per_token" {
		t.Fatalf("metadata lost: %v", sf.Metadata)
	}

	info, _ := sf.Tensor("act")
	if info.DType != "BF16" || len(info.Shape) != 3 {
		t.Fatalf("unexpected act info %+v", info)
	}
	back, err := sf.ReadMatrix("act")
	if err != nil {
		t.Fatalf("ReadMatrix act: %v", err)
	}
	bf, ok := back.(*quant.Matrix[half.BFloat16])
	if !ok {
		t.Fatalf("expected BF16 matrix, got %T", back)
	}
	if bf.Rows != 2 || bf.Cols != 3 {
		t.Fatalf("expected 2x3, got %dx%d", bf.Rows, bf.Cols)
	}
	if got := bf.At(1, 2).Float32(); got != -8 {
		t.Fatalf("expected -8, got %v", got)
	}

	qb, err := sf.ReadMatrix("act.q")
	if err != nil {
		t.Fatalf("ReadMatrix act.q: %v", err)
	}
	fq, ok := qb.(*quant.Matrix[float8.E4M3])
	if !ok {
		t.Fatalf("expected F8_E4M3 matrix, got %T", qb)
	}
	for i, v := range q.Data {
		if fq.Data[i] != v {
			t.Fatalf("code %d: expected %v, got %v", i, v, fq.Data[i])
		}
	}

	sc := readFloats(t, sf, "act.scale")
	if len(sc) != 2 || sc[0] != scales.Data[0] || sc[1] != scales.Data[1] {
		t.Fatalf("scales mismatch: %v vs %v", sc, scales.Data)
	}
}

func TestWriterRejectsBadShape(t *testing.T) {
	t.Parallel()
	m := quant.NewMatrix[float32](2, 3)
	w := NewWriter()
	if err := w.AddBufferShape("x", m, []int{4, 2}); err == nil {
		t.Fatal("expected error for shape that does not match element count")
	}
	if err := w.Add("__metadata__", "F32", []int{1}, make([]byte, 4)); err == nil {
		t.Fatal("expected error for reserved name")
	}
}
