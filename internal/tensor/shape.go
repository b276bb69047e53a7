package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
// An empty shape denotes a scalar.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Channels returns the size of the innermost (channel) dimension of an NHWC
// or HWC shape, and the number of positions that share each channel.
func (s Shape) Channels() (channels, positions int) {
	if len(s) == 0 {
		return 1, 1
	}
	channels = s[len(s)-1]
	return channels, s.NumElements() / channels
}

// BroadcastableTo reports whether s can be broadcast against target using
// NumPy rules restricted to one side: every dimension of s, aligned from the
// right, must be 1 or equal to the target's.
func (s Shape) BroadcastableTo(target Shape) bool {
	if len(s) > len(target) {
		return false
	}
	for i := 1; i <= len(s); i++ {
		dim := s[len(s)-i]
		if dim != 1 && dim != target[len(target)-i] {
			return false
		}
	}
	return true
}

// BroadcastIndex maps a flat row-major index into target to the flat index of
// the element of s it reads under broadcasting. s must be BroadcastableTo(target).
func (s Shape) BroadcastIndex(target Shape, flat int) int {
	idx := 0
	stride := 1
	for i := 1; i <= len(target); i++ {
		tdim := target[len(target)-i]
		coord := flat % tdim
		flat /= tdim
		if i > len(s) {
			continue
		}
		sdim := s[len(s)-i]
		if sdim != 1 {
			idx += coord * stride
		}
		stride *= sdim
	}
	return idx
}
