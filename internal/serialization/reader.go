package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/born-ml/resnet/internal/tensor"
)

// SafeTensorsReader gives access to the tensors of a loaded SafeTensors image.
type SafeTensorsReader struct {
	tensors  map[string]TensorMeta
	metadata map[string]string
	data     []byte
}

// OpenSafeTensors reads and validates a SafeTensors file.
func OpenSafeTensors(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	reader, err := DecodeSafeTensors(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reader, nil
}

// DecodeSafeTensors parses an in-memory SafeTensors image.
//
// If the metadata carries a checksum it is verified against the data section.
func DecodeSafeTensors(raw []byte) (*SafeTensorsReader, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: missing header size", ErrTruncatedFile)
	}
	headerSize := binary.LittleEndian.Uint64(raw[:8])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	if uint64(len(raw)-8) < headerSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedFile, headerSize, len(raw)-8)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerSize], &header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	r := &SafeTensorsReader{
		tensors:  make(map[string]TensorMeta, len(header)),
		metadata: make(map[string]string),
		data:     raw[8+headerSize:],
	}
	metas := make([]TensorMeta, 0, len(header))
	for name, value := range header {
		if name == "__metadata__" {
			if err := json.Unmarshal(value, &r.metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		meta, err := parseTensorHeader(name, value)
		if err != nil {
			return nil, err
		}
		r.tensors[name] = meta
		metas = append(metas, meta)
	}

	if err := ValidateTensorOffsets(metas, int64(len(r.data))); err != nil {
		return nil, err
	}
	if sum, ok := r.metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(r.data, sum); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func parseTensorHeader(name string, value json.RawMessage) (TensorMeta, error) {
	var h SafeTensorHeader
	if err := json.Unmarshal(value, &h); err != nil {
		return TensorMeta{}, fmt.Errorf("failed to parse tensor %q: %w", name, err)
	}
	width, err := dtypeSize(h.DType)
	if err != nil {
		return TensorMeta{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	shape := make([]int, len(h.Shape))
	elements := int64(1)
	for i, dim := range h.Shape {
		if dim <= 0 {
			return TensorMeta{}, &ValidationError{Type: "invalid_shape", Tensor: name, Details: fmt.Sprintf("dimension %d", dim)}
		}
		shape[i] = int(dim)
		elements *= dim
	}
	size := h.DataOffsets[1] - h.DataOffsets[0]
	if size != elements*width {
		return TensorMeta{}, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("shape %v needs %d bytes, offsets span %d", h.Shape, elements*width, size),
		}
	}
	return TensorMeta{Name: name, DType: h.DType, Shape: shape, Offset: h.DataOffsets[0], Size: size}, nil
}

func dtypeSize(dtype string) (int64, error) {
	switch dtype {
	case "F64":
		return 8, nil
	case "F32":
		return 4, nil
	case "U8":
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}

// Names returns the tensor names in alphabetical order.
func (r *SafeTensorsReader) Names() []string {
	names := make([]string, 0, len(r.tensors))
	for name := range r.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata returns the "__metadata__" map.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.metadata
}

// Tensor decodes the named tensor as float64.
func (r *SafeTensorsReader) Tensor(name string) (*tensor.RawTensor, error) {
	meta, ok := r.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	out, err := tensor.NewRaw(tensor.Shape(meta.Shape))
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	src := r.data[meta.Offset : meta.Offset+meta.Size]
	dst := out.Data()
	switch meta.DType {
	case "F64":
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
		}
	case "F32":
		for i := range dst {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
		}
	case "U8":
		for i := range dst {
			dst[i] = float64(src[i])
		}
	}
	return out, nil
}

// StateDict decodes every tensor.
func (r *SafeTensorsReader) StateDict() (map[string]*tensor.RawTensor, error) {
	state := make(map[string]*tensor.RawTensor, len(r.tensors))
	for name := range r.tensors {
		t, err := r.Tensor(name)
		if err != nil {
			return nil, err
		}
		state[name] = t
	}
	return state, nil
}

// ReadSafeTensors loads every tensor and the metadata of a SafeTensors file.
func ReadSafeTensors(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	reader, err := OpenSafeTensors(path)
	if err != nil {
		return nil, nil, err
	}
	state, err := reader.StateDict()
	if err != nil {
		return nil, nil, err
	}
	return state, reader.Metadata(), nil
}
