package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/resnet/internal/tensor"
)

// LossOutput holds the scalar loss components of one forward pass.
type LossOutput struct {
	Entropy *tensor.RawTensor // mean softmax cross-entropy
	Decay   *tensor.RawTensor // weight-decay penalty
	Total   *tensor.RawTensor // Entropy + Decay
}

// Loss combines softmax cross-entropy with L2 weight decay over the
// registry's weight group:
//
//	entropy = mean_b CE(softmax(logits_b), one_hot(label_b))
//	decay   = coefficient · Σ_{w ∈ weights} ½‖w‖²
//	total   = entropy + decay
//
// When decay is zero the total equals the entropy exactly.
type Loss[B tensor.Backend] struct {
	registry    *Registry
	weightDecay float64
	numClasses  int
	backend     B
}

// NewLoss creates the training objective.
func NewLoss[B tensor.Backend](b *Builder[B], numClasses int, weightDecay float64) (*Loss[B], error) {
	if weightDecay < 0 {
		return nil, fmt.Errorf("%w: negative weight decay %g", ErrInvalidConfig, weightDecay)
	}
	if numClasses <= 0 {
		return nil, fmt.Errorf("%w: %d classes", ErrInvalidConfig, numClasses)
	}
	return &Loss[B]{
		registry:    b.Registry,
		weightDecay: weightDecay,
		numClasses:  numClasses,
		backend:     b.Backend,
	}, nil
}

// WeightDecay returns the decay coefficient.
func (l *Loss[B]) WeightDecay() float64 {
	return l.weightDecay
}

// Forward computes the loss components for [batch, classes] logits.
func (l *Loss[B]) Forward(logits *tensor.RawTensor, labels []int) (LossOutput, error) {
	if shape := logits.Shape(); len(shape) != 2 || shape[0] != len(labels) || shape[1] != l.numClasses {
		return LossOutput{}, fmt.Errorf("logits shape %v does not match %d labels and %d classes",
			logits.Shape(), len(labels), l.numClasses)
	}
	targets, err := OneHot(labels, l.numClasses)
	if err != nil {
		return LossOutput{}, err
	}

	entropy := l.backend.SoftmaxCrossEntropy(logits, targets)
	decay := l.decay()
	return LossOutput{
		Entropy: entropy,
		Decay:   decay,
		Total:   l.backend.AddN(entropy, decay),
	}, nil
}

func (l *Loss[B]) decay() *tensor.RawTensor {
	weights := l.registry.Weights()
	if len(weights) == 0 {
		return tensor.Scalar(0)
	}
	penalties := make([]*tensor.RawTensor, len(weights))
	for i, w := range weights {
		penalties[i] = l.backend.L2Loss(w.Tensor())
	}
	return l.backend.MulScalar(l.backend.AddN(penalties...), l.weightDecay)
}

// Accuracy returns the fraction of rows whose arg-max equals the label.
// Ties resolve to the lowest class index.
func Accuracy(logits *tensor.RawTensor, labels []int) float64 {
	shape := logits.Shape()
	if len(shape) != 2 || shape[0] != len(labels) {
		panic(fmt.Sprintf("accuracy: logits shape %v does not match %d labels", shape, len(labels)))
	}
	if len(labels) == 0 {
		return 0
	}
	classes := shape[1]
	data := logits.Data()
	correct := 0
	for i, label := range labels {
		if floats.MaxIdx(data[i*classes:(i+1)*classes]) == label {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}
