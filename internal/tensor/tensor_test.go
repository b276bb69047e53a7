package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_NumElements(t *testing.T) {
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Equal(t, 3072, Shape{32, 32, 3}.NumElements())
}

func TestShape_Validate(t *testing.T) {
	require.NoError(t, Shape{2, 3}.Validate())
	require.Error(t, Shape{2, 0}.Validate())
	require.Error(t, Shape{-1}.Validate())
}

func TestShape_ComputeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
}

func TestShape_Broadcast(t *testing.T) {
	target := Shape{2, 2, 3}
	tests := []struct {
		name  string
		shape Shape
		ok    bool
	}{
		{"scalar", Shape{}, true},
		{"channels", Shape{3}, true},
		{"full", Shape{2, 2, 3}, true},
		{"ones", Shape{1, 1, 3}, true},
		{"mismatch", Shape{4}, false},
		{"too many dims", Shape{1, 2, 2, 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.shape.BroadcastableTo(target))
		})
	}

	// Channel vector: element k of the target reads channel k%3.
	for flat := 0; flat < target.NumElements(); flat++ {
		assert.Equal(t, flat%3, Shape{3}.BroadcastIndex(target, flat))
		assert.Equal(t, flat, Shape{2, 2, 3}.BroadcastIndex(target, flat))
		assert.Equal(t, 0, Shape{}.BroadcastIndex(target, flat))
	}
}

func TestRawTensor_FromSlice(t *testing.T) {
	_, err := FromSlice([]float64{1, 2, 3}, Shape{2, 2})
	require.Error(t, err)

	x, err := FromSlice([]float64{1, 2, 3, 4}, Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, x.Data())

	clone := x.Clone()
	clone.Data()[0] = 10
	assert.Equal(t, 1.0, x.Data()[0])

	view := x.View(Shape{4})
	view.Data()[1] = 20
	assert.Equal(t, 20.0, x.Data()[1])
}

func TestRawTensor_Eye(t *testing.T) {
	eye := Eye(3)
	assert.Equal(t, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, eye.Data())
}

func TestRawTensor_IsFinite(t *testing.T) {
	assert.True(t, Full(Shape{2}, 1).IsFinite())
	assert.False(t, Full(Shape{2}, math.NaN()).IsFinite())
	assert.False(t, Scalar(math.Inf(1)).IsFinite())
}

func TestSamePadding(t *testing.T) {
	tests := []struct {
		in, kernel, stride int
		want               Padding
		outH               int
	}{
		{32, 3, 1, Padding{1, 1, 1, 1}, 32},
		{32, 3, 2, Padding{0, 1, 0, 1}, 16},
		{16, 3, 2, Padding{0, 1, 0, 1}, 8},
		{8, 1, 1, Padding{}, 8},
		{7, 3, 2, Padding{1, 1, 1, 1}, 4},
	}
	for _, tt := range tests {
		pad := SamePadding(tt.in, tt.in, tt.kernel, tt.stride)
		assert.Equal(t, tt.want, pad)
		outH, outW := ConvOutputSize(tt.in, tt.in, tt.kernel, tt.stride, pad)
		assert.Equal(t, tt.outH, outH)
		assert.Equal(t, tt.outH, outW)
	}
}
