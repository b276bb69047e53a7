package cpu

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/resnet/internal/tensor"
)

// SoftmaxCrossEntropy computes mean_b( -Σ_k targets[b,k] · log_softmax(logits[b])[k] ).
//
// Targets are probability rows (one-hot for hard labels). log_softmax uses the
// log-sum-exp trick so large logits cannot overflow.
func (cpu *CPUBackend) SoftmaxCrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	mustRank("softmax_cross_entropy", logits, 2)
	mustSameShape("softmax_cross_entropy", logits, targets)
	batch, classes := logits.Shape()[0], logits.Shape()[1]
	z := logits.Data()
	t := targets.Data()

	total := 0.0
	for b := 0; b < batch; b++ {
		row := z[b*classes : (b+1)*classes]
		lse := floats.LogSumExp(row)
		for k, v := range row {
			if tk := t[b*classes+k]; tk != 0 {
				total -= tk * (v - lse)
			}
		}
	}
	return tensor.Scalar(total / float64(batch))
}

// SoftmaxCrossEntropyBackward returns ∂L/∂logits = (softmax(logits) - targets) · grad / batch.
func (cpu *CPUBackend) SoftmaxCrossEntropyBackward(logits, targets, grad *tensor.RawTensor) *tensor.RawTensor {
	batch, classes := logits.Shape()[0], logits.Shape()[1]
	scale := grad.Item() / float64(batch)
	out := tensor.Zeros(logits.Shape())
	z := logits.Data()
	t := targets.Data()
	dst := out.Data()

	for b := 0; b < batch; b++ {
		off := b * classes
		row := z[off : off+classes]
		lse := floats.LogSumExp(row)
		for k, v := range row {
			dst[off+k] = (math.Exp(v-lse) - t[off+k]) * scale
		}
	}
	return out
}

// L2Loss computes ½ Σ x² as a scalar.
func (cpu *CPUBackend) L2Loss(x *tensor.RawTensor) *tensor.RawTensor {
	d := x.Data()
	return tensor.Scalar(0.5 * floats.Dot(d, d))
}
