// Package tensor provides the dense tensor representation shared by every
// layer of the classifier: shapes, float64 storage, padding descriptors and
// the Backend interface implemented by compute backends.
package tensor

import (
	"fmt"
	"math"
)

// RawTensor is a dense, row-major float64 tensor.
//
// Images and feature maps use NHWC layout; convolution kernels use
// [kernel_h, kernel_w, in_channels, out_channels].
type RawTensor struct {
	shape Shape
	data  []float64
}

// NewRaw creates a zero-filled tensor with the given shape.
func NewRaw(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		shape: shape.Clone(),
		data:  make([]float64, shape.NumElements()),
	}, nil
}

// Zeros creates a zero-filled tensor and panics on an invalid shape.
func Zeros(shape Shape) *RawTensor {
	t, err := NewRaw(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *RawTensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Scalar creates a rank-0 tensor holding v.
func Scalar(v float64) *RawTensor {
	return &RawTensor{shape: Shape{}, data: []float64{v}}
}

// Eye creates an n×n identity matrix.
func Eye(n int) *RawTensor {
	t := Zeros(Shape{n, n})
	for i := 0; i < n; i++ {
		t.data[i*n+i] = 1
	}
	return t
}

// FromSlice creates a tensor from a Go slice. The slice is copied.
func FromSlice(data []float64, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := NewRaw(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return len(r.data)
}

// Data returns the backing slice. Writes are visible to every view of the tensor.
func (r *RawTensor) Data() []float64 {
	return r.data
}

// Item returns the single value of a one-element tensor.
func (r *RawTensor) Item() float64 {
	if len(r.data) != 1 {
		panic(fmt.Sprintf("item: tensor with shape %v has %d elements", r.shape, len(r.data)))
	}
	return r.data[0]
}

// Clone returns a deep copy.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float64, len(r.data))
	copy(data, r.data)
	return &RawTensor{shape: r.shape.Clone(), data: data}
}

// View returns a tensor sharing r's storage under a new shape.
func (r *RawTensor) View(shape Shape) *RawTensor {
	if shape.NumElements() != len(r.data) {
		panic(fmt.Sprintf("view: cannot view %v as %v", r.shape, shape))
	}
	return &RawTensor{shape: shape.Clone(), data: r.data}
}

// CopyFrom overwrites r's values with src's. Shapes must hold the same number of elements.
func (r *RawTensor) CopyFrom(src *RawTensor) {
	if len(src.data) != len(r.data) {
		panic(fmt.Sprintf("copy: size mismatch %v vs %v", r.shape, src.shape))
	}
	copy(r.data, src.data)
}

// IsFinite reports whether every element is neither NaN nor infinite.
func (r *RawTensor) IsFinite() bool {
	for _, v := range r.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String returns a short description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor(shape=%v)", r.shape)
}
