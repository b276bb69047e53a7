// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Convolutions use im2col followed by a gonum GEMM; images of a batch are
// processed in parallel.
package cpu

import (
	internalcpu "github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
func New() *Backend {
	return internalcpu.New()
}
