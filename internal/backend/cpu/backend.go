// Package cpu implements tensor.Backend in pure Go.
//
// Feature maps are NHWC so that every spatial position stores its channels
// contiguously; convolutions lower to a single GEMM over im2col patches and
// per-channel reductions walk rows of a [positions, channels] view.
package cpu

import (
	"fmt"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// CPUBackend implements tensor.Backend on the CPU.
type CPUBackend struct {
	parallel parallel.Config
}

// New creates a CPU backend using every available core.
func New() *CPUBackend {
	return &CPUBackend{parallel: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{parallel: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Reshape returns a view of x with a new shape.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return x.View(newShape)
}

func mustSameShape(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}

func mustRank(op string, x *tensor.RawTensor, rank int) {
	if len(x.Shape()) != rank {
		panic(fmt.Sprintf("%s: expected %dD input, got shape %v", op, rank, x.Shape()))
	}
}

// mustChannelVector checks that v has shape [C] matching x's channel axis.
func mustChannelVector(op string, x, v *tensor.RawTensor) {
	channels, _ := x.Shape().Channels()
	if !v.Shape().Equal(tensor.Shape{channels}) {
		panic(fmt.Sprintf("%s: expected per-channel shape [%d], got %v", op, channels, v.Shape()))
	}
}

func (cpu *CPUBackend) forEachImage(n int, f func(n int)) {
	parallel.For(n, cpu.parallel, f)
}
