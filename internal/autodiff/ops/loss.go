package ops

import "github.com/born-ml/resnet/internal/tensor"

// SoftmaxCrossEntropyOp records the batch-mean softmax cross-entropy.
//
// Backward:
//
//	∂L/∂logits[b,k] = (softmax(logits[b])[k] - targets[b,k]) / batch_size
//
// Targets are constants; no gradient flows to them.
type SoftmaxCrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewSoftmaxCrossEntropyOp creates a new SoftmaxCrossEntropyOp.
func NewSoftmaxCrossEntropyOp(logits, targets, output *tensor.RawTensor) *SoftmaxCrossEntropyOp {
	return &SoftmaxCrossEntropyOp{logits: logits, targets: targets, output: output}
}

// Inputs returns [logits].
func (op *SoftmaxCrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

// Output returns the scalar loss.
func (op *SoftmaxCrossEntropyOp) Output() *tensor.RawTensor { return op.output }

// Backward returns the logits gradient.
func (op *SoftmaxCrossEntropyOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.SoftmaxCrossEntropyBackward(op.logits, op.targets, outputGrad)}
}

// L2LossOp records ½ Σ x². Backward: ∂L/∂x = x · grad.
type L2LossOp struct {
	x, output *tensor.RawTensor
}

// NewL2LossOp creates a new L2LossOp.
func NewL2LossOp(x, output *tensor.RawTensor) *L2LossOp {
	return &L2LossOp{x: x, output: output}
}

// Inputs returns [x].
func (op *L2LossOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.x} }

// Output returns the scalar penalty.
func (op *L2LossOp) Output() *tensor.RawTensor { return op.output }

// Backward returns x scaled by the scalar output gradient.
func (op *L2LossOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(op.x, outputGrad.Item())}
}
