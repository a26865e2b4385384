package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tokquant/pkg/quant"
)

// headerAlign pads the JSON header so tensor data starts 8-byte aligned.
const headerAlign = 8

type pendingTensor struct {
	name  string
	dtype string
	shape []int
	data  []byte
}

// Writer accumulates tensors in memory and serialises them in insertion
// order.
type Writer struct {
	tensors  []pendingTensor
	names    map[string]struct{}
	metadata map[string]string
}

func NewWriter() *Writer {
	return &Writer{names: make(map[string]struct{})}
}

func (w *Writer) SetMetadata(key, value string) {
	if w.metadata == nil {
		w.metadata = make(map[string]string)
	}
	w.metadata[key] = value
}

// Add records a raw tensor. data is retained, not copied.
func (w *Writer) Add(name, dtype string, shape []int, data []byte) error {
	if name == "" || name == metadataKey {
		return fmt.Errorf("invalid tensor name %q", name)
	}
	if _, dup := w.names[name]; dup {
		return fmt.Errorf("duplicate tensor %s", name)
	}
	w.names[name] = struct{}{}
	w.tensors = append(w.tensors, pendingTensor{
		name:  name,
		dtype: dtype,
		shape: append([]int(nil), shape...),
		data:  data,
	})
	return nil
}

// AddBuffer records a quant buffer as a 2-D tensor.
func (w *Writer) AddBuffer(name string, b quant.Buffer) error {
	return w.AddBufferShape(name, b, nil)
}

// AddBufferShape records b with an explicit shape, used to keep the leading
// dimensions of a folded activation. A nil shape means [rows, cols].
func (w *Writer) AddBufferShape(name string, b quant.Buffer, shape []int) error {
	data, err := quant.Bytes(b)
	if err != nil {
		return err
	}
	dims := b.Shape()
	rows, cols := dims[0], dims[1]
	if shape == nil {
		shape = []int{rows, cols}
	} else if n, err := numElements(shape); err != nil || n != rows*cols {
		return fmt.Errorf("tensor %s: shape %v does not hold %dx%d", name, shape, rows, cols)
	}
	return w.Add(name, b.DType().String(), shape, data)
}

func (w *Writer) header() ([]byte, error) {
	header := make(map[string]any, len(w.tensors)+1)
	if len(w.metadata) > 0 {
		header[metadataKey] = w.metadata
	}
	var off int64
	for _, t := range w.tensors {
		end := off + int64(len(t.data))
		header[t.name] = tensorHeader{
			DType:       t.dtype,
			Shape:       t.shape,
			DataOffsets: []int64{off, end},
		}
		off = end
	}
	b, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	for len(b)%headerAlign != 0 {
		b = append(b, ' ')
	}
	return b, nil
}

func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	header, err := w.header()
	if err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	var total int64
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	n, err := out.Write(lenBuf[:])
	total += int64(n)
	if err != nil {
		return total, err
	}
	n, err = out.Write(header)
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, t := range w.tensors {
		n, err = out.Write(t.data)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write tensor %s: %w", t.name, err)
		}
	}
	return total, nil
}

// WriteFile writes to a temporary file beside path and renames it into
// place.
func (w *Writer) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := w.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
