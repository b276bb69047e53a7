package tensor

// Backend defines the interface that compute backends implement.
// Backends handle the actual computation for tensor operations; the autodiff
// backend decorates another Backend and records every differentiable call.
//
// Layout conventions: feature maps are NHWC, kernels are [KH, KW, C_in, C_out],
// per-channel vectors have shape [C].
type Backend interface {
	// Element-wise operations
	Add(a, b *RawTensor) *RawTensor        // a + b, identical shapes
	AddN(xs ...*RawTensor) *RawTensor      // Σ xs, identical shapes
	AddBias(x, bias *RawTensor) *RawTensor // x + bias broadcast over the channel axis
	MulScalar(x *RawTensor, s float64) *RawTensor
	ReLU(x *RawTensor) *RawTensor

	// Convolution and pooling
	Conv2D(input, kernel *RawTensor, stride int, pad Padding) *RawTensor
	GlobalAvgPool(x *RawTensor) *RawTensor           // [N,H,W,C] -> [N,1,1,C]
	Reshape(x *RawTensor, newShape Shape) *RawTensor // shares storage

	// Normalization
	Moments(x *RawTensor) (mean, variance *RawTensor) // per channel over N,H,W
	Normalize(x, mean, variance, scale, offset *RawTensor, eps float64) *RawTensor

	// Losses (scalar results)
	SoftmaxCrossEntropy(logits, targets *RawTensor) *RawTensor // mean over batch
	L2Loss(x *RawTensor) *RawTensor                            // ½ Σ x²

	// Gradient kernels
	ReLUBackward(output, grad *RawTensor) *RawTensor
	AddBiasBackward(grad *RawTensor) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride int, pad Padding) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride int, pad Padding) *RawTensor
	GlobalAvgPoolBackward(input, grad *RawTensor) *RawTensor
	MomentsBackward(x, mean, meanGrad, varianceGrad *RawTensor) *RawTensor
	NormalizeBackward(x, mean, variance, scale, grad *RawTensor, eps float64) (dx, dmean, dvariance, dscale, doffset *RawTensor)
	SoftmaxCrossEntropyBackward(logits, targets, grad *RawTensor) *RawTensor

	// Metadata
	Name() string
}
