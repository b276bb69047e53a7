package ops

import "github.com/born-ml/resnet/internal/tensor"

// AddOp records output = a + b. Both inputs receive the output gradient unchanged.
type AddOp struct {
	a, b, output *tensor.RawTensor
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{a: a, b: b, output: output}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.a, op.b} }

// Output returns a + b.
func (op *AddOp) Output() *tensor.RawTensor { return op.output }

// Backward returns [grad, grad].
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, outputGrad}
}

// AddNOp records output = Σ inputs.
type AddNOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewAddNOp creates a new AddNOp.
func NewAddNOp(inputs []*tensor.RawTensor, output *tensor.RawTensor) *AddNOp {
	return &AddNOp{inputs: inputs, output: output}
}

// Inputs returns the summands.
func (op *AddNOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the sum.
func (op *AddNOp) Output() *tensor.RawTensor { return op.output }

// Backward hands the output gradient to every summand.
func (op *AddNOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	for i := range grads {
		grads[i] = outputGrad
	}
	return grads
}

// AddBiasOp records output = x + bias broadcast over the channel axis.
type AddBiasOp struct {
	x, bias, output *tensor.RawTensor
}

// NewAddBiasOp creates a new AddBiasOp.
func NewAddBiasOp(x, bias, output *tensor.RawTensor) *AddBiasOp {
	return &AddBiasOp{x: x, bias: bias, output: output}
}

// Inputs returns [x, bias].
func (op *AddBiasOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x, op.bias} }

// Output returns x + bias.
func (op *AddBiasOp) Output() *tensor.RawTensor { return op.output }

// Backward passes grad to x and reduces it over positions for bias.
func (op *AddBiasOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, backend.AddBiasBackward(outputGrad)}
}

// MulScalarOp records output = x · s for a constant s.
type MulScalarOp struct {
	x, output *tensor.RawTensor
	scalar    float64
}

// NewMulScalarOp creates a new MulScalarOp.
func NewMulScalarOp(x, output *tensor.RawTensor, scalar float64) *MulScalarOp {
	return &MulScalarOp{x: x, output: output, scalar: scalar}
}

// Inputs returns [x].
func (op *MulScalarOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

// Output returns x · s.
func (op *MulScalarOp) Output() *tensor.RawTensor { return op.output }

// Backward returns grad · s.
func (op *MulScalarOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}

// ReLUOp records output = max(0, x).
type ReLUOp struct {
	x, output *tensor.RawTensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(x, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{x: x, output: output}
}

// Inputs returns [x].
func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

// Output returns ReLU(x).
func (op *ReLUOp) Output() *tensor.RawTensor { return op.output }

// Backward masks grad where the output was zero.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.ReLUBackward(op.output, outputGrad)}
}

// ReshapeOp records a view of x under a new shape (e.g. squeezing pooled maps).
type ReshapeOp struct {
	x, output *tensor.RawTensor
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{x: x, output: output}
}

// Inputs returns [x].
func (op *ReshapeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

// Output returns the reshaped view.
func (op *ReshapeOp) Output() *tensor.RawTensor { return op.output }

// Backward reshapes grad back to x's shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.x.Shape())}
}
