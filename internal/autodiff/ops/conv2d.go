package ops

import "github.com/born-ml/resnet/internal/tensor"

// Conv2DOp records a 2D convolution.
//
// Backward:
//   - d_input:  transposed convolution of d_output with the kernel
//   - d_kernel: correlation of the input with d_output
type Conv2DOp struct {
	input  *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
	stride int
	pad    tensor.Padding
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride int, pad tensor.Padding) *Conv2DOp {
	return &Conv2DOp{input: input, kernel: kernel, output: output, stride: stride, pad: pad}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the convolution result.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward delegates both gradients to the backend.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.pad)
	kernelGrad := backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.stride, op.pad)
	return []*tensor.RawTensor{inputGrad, kernelGrad}
}

// GlobalAvgPoolOp records [N,H,W,C] -> [N,1,1,C] spatial averaging.
type GlobalAvgPoolOp struct {
	input, output *tensor.RawTensor
}

// NewGlobalAvgPoolOp creates a new GlobalAvgPoolOp.
func NewGlobalAvgPoolOp(input, output *tensor.RawTensor) *GlobalAvgPoolOp {
	return &GlobalAvgPoolOp{input: input, output: output}
}

// Inputs returns [input].
func (op *GlobalAvgPoolOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the pooled tensor.
func (op *GlobalAvgPoolOp) Output() *tensor.RawTensor { return op.output }

// Backward spreads grad evenly over each pooled window.
func (op *GlobalAvgPoolOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.GlobalAvgPoolBackward(op.input, outputGrad)}
}
