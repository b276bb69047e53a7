package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/tensor"
)

func TestWriteReadSafeTensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.safetensors")
	weight, err := tensor.FromSlice([]float64{0.5, -1.25, 3, 1e-9}, tensor.Shape{2, 2})
	require.NoError(t, err)
	state := map[string]*tensor.RawTensor{
		"res_net/stem/conv/weight": weight,
		"step":                     tensor.Scalar(42),
	}

	require.NoError(t, WriteSafeTensors(path, state, map[string]string{"step": "42"}))

	loaded, meta, err := ReadSafeTensors(path)
	require.NoError(t, err)
	assert.Equal(t, "42", meta["step"])
	assert.Contains(t, meta, ChecksumKey)
	require.Len(t, loaded, 2)
	assert.Equal(t, tensor.Shape{2, 2}, loaded["res_net/stem/conv/weight"].Shape())
	assert.Equal(t, weight.Data(), loaded["res_net/stem/conv/weight"].Data())
	assert.Equal(t, 42.0, loaded["step"].Item())
}

func TestReader_Names(t *testing.T) {
	encoded, err := EncodeSafeTensors(map[string]*tensor.RawTensor{
		"std":  tensor.Full(tensor.Shape{1}, 2),
		"mean": tensor.Full(tensor.Shape{1}, 1),
	}, nil)
	require.NoError(t, err)

	reader, err := DecodeSafeTensors(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"mean", "std"}, reader.Names())

	_, err = reader.Tensor("variance")
	assert.ErrorIs(t, err, ErrTensorNotFound)
}

func TestDecode_DetectsCorruption(t *testing.T) {
	encoded, err := EncodeSafeTensors(map[string]*tensor.RawTensor{
		"mean": tensor.Full(tensor.Shape{4}, 1),
	}, nil)
	require.NoError(t, err)

	encoded[len(encoded)-1] ^= 0xFF
	_, err = DecodeSafeTensors(encoded)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecode_Truncated(t *testing.T) {
	_, err := DecodeSafeTensors([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedFile)

	encoded, err := EncodeSafeTensors(map[string]*tensor.RawTensor{"x": tensor.Scalar(1)}, nil)
	require.NoError(t, err)
	_, err = DecodeSafeTensors(encoded[:12])
	assert.ErrorIs(t, err, ErrTruncatedFile)
}

// encodeRaw builds a SafeTensors image by hand for dtypes the writer never emits.
func encodeRaw(t *testing.T, header map[string]any, data []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	return append(out, data...)
}

func TestDecode_WidensF32AndU8(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-2))
	data = append(data, 7, 255)

	encoded := encodeRaw(t, map[string]any{
		"f": SafeTensorHeader{DType: "F32", Shape: []int64{2}, DataOffsets: [2]int64{0, 8}},
		"u": SafeTensorHeader{DType: "U8", Shape: []int64{2}, DataOffsets: [2]int64{8, 10}},
	}, data)

	reader, err := DecodeSafeTensors(encoded)
	require.NoError(t, err)
	f, err := reader.Tensor("f")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, f.Data())
	u, err := reader.Tensor("u")
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 255}, u.Data())
}

func TestDecode_RejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]any
		data   []byte
	}{
		{
			name:   "unsupported dtype",
			header: map[string]any{"x": SafeTensorHeader{DType: "BF16", Shape: []int64{1}, DataOffsets: [2]int64{0, 2}}},
			data:   make([]byte, 2),
		},
		{
			name:   "size mismatch",
			header: map[string]any{"x": SafeTensorHeader{DType: "F64", Shape: []int64{2}, DataOffsets: [2]int64{0, 8}}},
			data:   make([]byte, 8),
		},
		{
			name:   "out of bounds",
			header: map[string]any{"x": SafeTensorHeader{DType: "F64", Shape: []int64{2}, DataOffsets: [2]int64{0, 16}}},
			data:   make([]byte, 8),
		},
		{
			name: "overlap",
			header: map[string]any{
				"a": SafeTensorHeader{DType: "F64", Shape: []int64{2}, DataOffsets: [2]int64{0, 16}},
				"b": SafeTensorHeader{DType: "F64", Shape: []int64{1}, DataOffsets: [2]int64{8, 16}},
			},
			data: make([]byte, 16),
		},
		{
			name:   "path traversal",
			header: map[string]any{"../x": SafeTensorHeader{DType: "U8", Shape: []int64{1}, DataOffsets: [2]int64{0, 1}}},
			data:   make([]byte, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSafeTensors(encodeRaw(t, tt.header, tt.data))
			assert.Error(t, err)
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	assert.NoError(t, ValidateTensorName("res_net/group_1/block_1/conv_1/weight"))
	assert.NoError(t, ValidateTensorName("optimizer.velocity.3"))

	for _, bad := range []string{"", "/abs", "a/../b", "a\\b", "nul\x00"} {
		err := ValidateTensorName(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.Is(err, ErrInvalidTensorName), bad)
	}
}
