// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient tracking
// through a GradientTape. Forward computation is delegated to the inner
// backend; every differentiable call is recorded as an ops.Operation while
// the tape is recording.
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	logits := model.Forward(images)
//	loss := backend.SoftmaxCrossEntropy(logits, labels)
//	grads := autodiff.Backward(loss, backend)
package autodiff

import (
	"github.com/born-ml/resnet/internal/autodiff/ops"
	"github.com/born-ml/resnet/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// AddN sums tensors of identical shape and records the operation.
func (b *AutodiffBackend[B]) AddN(xs ...*tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.AddN(xs...)
	b.tape.Record(ops.NewAddNOp(append([]*tensor.RawTensor(nil), xs...), result))
	return result
}

// AddBias adds a per-channel bias and records the operation.
func (b *AutodiffBackend[B]) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.AddBias(x, bias)
	b.tape.Record(ops.NewAddBiasOp(x, bias, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	result := b.inner.MulScalar(x, s)
	b.tape.Record(ops.NewMulScalarOp(x, result, s))
	return result
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// Conv2D performs a 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride int, pad tensor.Padding) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, pad)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, pad))
	return result
}

// GlobalAvgPool averages over the spatial axes and records the operation.
func (b *AutodiffBackend[B]) GlobalAvgPool(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.GlobalAvgPool(x)
	b.tape.Record(ops.NewGlobalAvgPoolOp(x, result))
	return result
}

// Reshape returns a view with a new shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(x, newShape)
	b.tape.Record(ops.NewReshapeOp(x, result))
	return result
}

// Moments computes per-channel batch statistics and records the operation.
func (b *AutodiffBackend[B]) Moments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	mean, variance = b.inner.Moments(x)
	b.tape.Record(ops.NewMomentsOp(x, mean, variance))
	return mean, variance
}

// Normalize applies the batch-normalization transform and records the operation.
func (b *AutodiffBackend[B]) Normalize(x, mean, variance, scale, offset *tensor.RawTensor, eps float64) *tensor.RawTensor {
	result := b.inner.Normalize(x, mean, variance, scale, offset, eps)
	b.tape.Record(ops.NewNormalizeOp(x, mean, variance, scale, offset, result, eps))
	return result
}

// SoftmaxCrossEntropy computes the batch-mean cross-entropy and records the operation.
func (b *AutodiffBackend[B]) SoftmaxCrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.SoftmaxCrossEntropy(logits, targets)
	b.tape.Record(ops.NewSoftmaxCrossEntropyOp(logits, targets, result))
	return result
}

// L2Loss computes ½ Σ x² and records the operation.
func (b *AutodiffBackend[B]) L2Loss(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.L2Loss(x)
	b.tape.Record(ops.NewL2LossOp(x, result))
	return result
}

// Gradient kernels are forwarded without recording.

// ReLUBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) ReLUBackward(output, grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.ReLUBackward(output, grad)
}

// AddBiasBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) AddBiasBackward(grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.AddBiasBackward(grad)
}

// Conv2DInputBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride int, pad tensor.Padding) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, pad)
}

// Conv2DKernelBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride int, pad tensor.Padding) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, stride, pad)
}

// GlobalAvgPoolBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) GlobalAvgPoolBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.GlobalAvgPoolBackward(input, grad)
}

// MomentsBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) MomentsBackward(x, mean, meanGrad, varianceGrad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.MomentsBackward(x, mean, meanGrad, varianceGrad)
}

// NormalizeBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) NormalizeBackward(
	x, mean, variance, scale, grad *tensor.RawTensor, eps float64,
) (dx, dmean, dvariance, dscale, doffset *tensor.RawTensor) {
	return b.inner.NormalizeBackward(x, mean, variance, scale, grad, eps)
}

// SoftmaxCrossEntropyBackward delegates to the inner backend.
func (b *AutodiffBackend[B]) SoftmaxCrossEntropyBackward(logits, targets, grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.SoftmaxCrossEntropyBackward(logits, targets, grad)
}

// Compile-time check.
var _ tensor.Backend = (*AutodiffBackend[tensor.Backend])(nil)
