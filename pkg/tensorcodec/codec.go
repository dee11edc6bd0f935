// Package tensorcodec implements the tensor serialization wire format from
// the specification: a big-endian byte stream of magic, element type, rank,
// shape, and raw row-major data.
package tensorcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flint-go/flint/internal/graph"
)

// Magic is the fixed 4-byte prefix every serialized tensor begins with.
const Magic uint32 = 0x00075321

// typeCode maps an ElementType to its wire-format byte value (0..3).
func typeCode(t graph.ElementType) (uint32, error) {
	switch t {
	case graph.Int32:
		return 0, nil
	case graph.Int64:
		return 1, nil
	case graph.Float32:
		return 2, nil
	case graph.Float64:
		return 3, nil
	default:
		return 0, fmt.Errorf("tensorcodec: unknown element type %v", t)
	}
}

func typeFromCode(code uint32) (graph.ElementType, error) {
	switch code {
	case 0:
		return graph.Int32, nil
	case 1:
		return graph.Int64, nil
	case 2:
		return graph.Float32, nil
	case 3:
		return graph.Float64, nil
	default:
		return 0, fmt.Errorf("tensorcodec: invalid element type code %d", code)
	}
}

// Tensor is the minimal materialized-tensor view the codec operates on: a
// shape, an element type, and the raw row-major element bytes (already in
// native Go encoding for that element type, host-endian — conversion to the
// wire's big-endian form happens during Encode/Decode).
type Tensor struct {
	Shape graph.Shape
	Type  graph.ElementType
	Data  []byte // len(Data) == product(Shape) * ElementSize(Type), host layout
}

// Encode writes t to w in the wire format described in the specification.
func Encode(w io.Writer, t *Tensor) error {
	code, err := typeCode(t.Type)
	if err != nil {
		return err
	}
	if len(t.Shape) == 0 {
		return fmt.Errorf("tensorcodec: cannot encode a tensor with empty shape")
	}

	var header bytes.Buffer
	if err := binary.Write(&header, binary.BigEndian, Magic); err != nil {
		return err
	}
	if err := binary.Write(&header, binary.BigEndian, code); err != nil {
		return err
	}
	if err := binary.Write(&header, binary.BigEndian, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, dim := range t.Shape {
		if err := binary.Write(&header, binary.BigEndian, uint64(dim)); err != nil {
			return err
		}
	}
	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}

	return writeElementsBigEndian(w, t.Type, t.Data)
}

// Decode reads a tensor from r, validating the magic number.
func Decode(r io.Reader) (*Tensor, error) {
	var magic, code, rank uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("tensorcodec: failed to read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("tensorcodec: bad magic number %#x, want %#x", magic, Magic)
	}
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return nil, fmt.Errorf("tensorcodec: failed to read element type: %w", err)
	}
	elemType, err := typeFromCode(code)
	if err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &rank); err != nil {
		return nil, fmt.Errorf("tensorcodec: failed to read rank: %w", err)
	}
	if rank == 0 {
		return nil, fmt.Errorf("tensorcodec: rank must be positive")
	}

	shape := make(graph.Shape, rank)
	count := uint64(1)
	for i := range shape {
		var dim uint64
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("tensorcodec: failed to read shape dim %d: %w", i, err)
		}
		shape[i] = int(dim)
		count *= dim
	}

	data, err := readElementsBigEndian(r, elemType, int(count))
	if err != nil {
		return nil, err
	}

	return &Tensor{Shape: shape, Type: elemType, Data: data}, nil
}

// writeElementsBigEndian/readElementsBigEndian byte-swap every element
// unconditionally, which assumes a little-endian host (true for every
// platform this module targets); a big-endian host would need these to
// become no-ops instead.
func writeElementsBigEndian(w io.Writer, t graph.ElementType, hostData []byte) error {
	size := graph.ElementSize(t)
	if size == 0 || len(hostData)%size != 0 {
		return fmt.Errorf("tensorcodec: data length %d not a multiple of element size %d", len(hostData), size)
	}
	n := len(hostData) / size
	buf := make([]byte, size)
	for i := 0; i < n; i++ {
		elem := hostData[i*size : (i+1)*size]
		for b := 0; b < size; b++ {
			buf[b] = elem[size-1-b]
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func readElementsBigEndian(r io.Reader, t graph.ElementType, count int) ([]byte, error) {
	size := graph.ElementSize(t)
	out := make([]byte, count*size)
	buf := make([]byte, size)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("tensorcodec: failed to read element %d: %w", i, err)
		}
		elem := out[i*size : (i+1)*size]
		for b := 0; b < size; b++ {
			elem[b] = buf[size-1-b]
		}
	}
	return out, nil
}
