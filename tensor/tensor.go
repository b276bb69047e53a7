// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the public view of the float64 NHWC tensors the residual
// network runs on.
//
// Example:
//
//	images := tensor.Zeros(tensor.Shape{8, 32, 32, 3})
//	kernel, err := tensor.FromSlice(weights, tensor.Shape{3, 3, 3, 16})
package tensor

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// RawTensor is a dense row-major float64 tensor.
type RawTensor = tensor.RawTensor

// Shape is a tensor shape; NHWC for feature maps, [KH, KW, Cin, Cout] for kernels.
type Shape = tensor.Shape

// Backend is the set of kernels a compute device provides.
type Backend = tensor.Backend

// Padding holds explicit spatial padding for a convolution.
type Padding = tensor.Padding

// Zeros creates a zero-filled tensor. It panics on an invalid shape.
func Zeros(shape Shape) *RawTensor {
	return tensor.Zeros(shape)
}

// Full creates a tensor with every element set to value.
func Full(shape Shape, value float64) *RawTensor {
	return tensor.Full(shape, value)
}

// FromSlice wraps data (copied) in a tensor of the given shape.
func FromSlice(data []float64, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// SamePadding returns the TensorFlow "SAME" padding of a square kernel over an
// inH×inW input.
func SamePadding(inH, inW, kernel, stride int) Padding {
	return tensor.SamePadding(inH, inW, kernel, stride)
}
