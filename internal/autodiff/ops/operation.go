// Package ops defines the differentiable operations recorded on the gradient tape.
//
// Each operation keeps references to its inputs and outputs from the forward
// pass and computes input gradients from the output gradient, delegating the
// arithmetic to a tensor.Backend.
package ops

import "github.com/born-ml/resnet/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The result is index-aligned with Inputs(); nil entries mean "no gradient".
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// MultiOutputOperation represents an operation that produces several outputs,
// such as batch moments (mean and variance). The tape collects gradients for
// all outputs before calling BackwardMulti.
type MultiOutputOperation interface {
	Operation

	// Outputs returns all output tensors produced by this operation.
	Outputs() []*tensor.RawTensor

	// BackwardMulti computes input gradients given gradients for every output.
	// Outputs that received no gradient are passed as nil.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}
