package ops

import "github.com/born-ml/resnet/internal/tensor"

// MomentsOp records the per-channel batch mean and variance of x.
// It is a MultiOutputOperation: outputs are [mean, variance].
type MomentsOp struct {
	x        *tensor.RawTensor
	mean     *tensor.RawTensor
	variance *tensor.RawTensor
}

// NewMomentsOp creates a new MomentsOp.
func NewMomentsOp(x, mean, variance *tensor.RawTensor) *MomentsOp {
	return &MomentsOp{x: x, mean: mean, variance: variance}
}

// Inputs returns [x].
func (op *MomentsOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

// Output returns the mean (the primary output).
func (op *MomentsOp) Output() *tensor.RawTensor { return op.mean }

// Outputs returns [mean, variance].
func (op *MomentsOp) Outputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.mean, op.variance}
}

// Backward handles the case where only the mean received a gradient.
func (op *MomentsOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return op.BackwardMulti([]*tensor.RawTensor{outputGrad, nil}, backend)
}

// BackwardMulti maps mean and variance gradients back onto x.
func (op *MomentsOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MomentsBackward(op.x, op.mean, outputGrads[0], outputGrads[1])}
}

// NormalizeOp records y = scale·(x - mean)/sqrt(variance + eps) + offset.
//
// In training mode mean and variance are outputs of a MomentsOp, so their
// gradients continue to x through it. In inference mode they are moving
// averages that never appear on the tape; their gradients are dropped.
type NormalizeOp struct {
	x, mean, variance, scale, offset *tensor.RawTensor
	output                           *tensor.RawTensor
	eps                              float64
}

// NewNormalizeOp creates a new NormalizeOp.
func NewNormalizeOp(x, mean, variance, scale, offset, output *tensor.RawTensor, eps float64) *NormalizeOp {
	return &NormalizeOp{
		x: x, mean: mean, variance: variance, scale: scale, offset: offset,
		output: output, eps: eps,
	}
}

// Inputs returns [x, mean, variance, scale, offset].
func (op *NormalizeOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.x, op.mean, op.variance, op.scale, op.offset}
}

// Output returns the normalized tensor.
func (op *NormalizeOp) Output() *tensor.RawTensor { return op.output }

// Backward returns gradients for every input.
func (op *NormalizeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dx, dmean, dvar, dscale, doffset := backend.NormalizeBackward(op.x, op.mean, op.variance, op.scale, outputGrad, op.eps)
	return []*tensor.RawTensor{dx, dmean, dvar, dscale, doffset}
}
