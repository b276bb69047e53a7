package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/resnet/internal/tensor"
)

// Batch normalization defaults.
const (
	DefaultBatchNormDecay   = 0.99
	DefaultBatchNormEpsilon = 1e-3
)

// StatisticsSource tags where normalization statistics came from.
type StatisticsSource int

const (
	// FromBatch means the statistics are the current batch moments and the
	// moving averages were updated with them.
	FromBatch StatisticsSource = iota
	// FromMovingAverage means the statistics are the moving averages and
	// nothing was updated.
	FromMovingAverage
)

// String returns a readable name for the source.
func (s StatisticsSource) String() string {
	if s == FromMovingAverage {
		return "moving_average"
	}
	return "batch"
}

// Statistics is the per-channel mean and variance selected for one forward pass.
type Statistics struct {
	Source   StatisticsSource
	Mean     *tensor.RawTensor // [C]
	Variance *tensor.RawTensor // [C]
}

// BatchNorm normalizes each channel over the batch and spatial axes.
//
// Training phase:
//
//	mean, var = moments(x)                     (gradients flow through both)
//	moving_mean = decay·moving_mean + (1-decay)·mean
//	moving_var  = decay·moving_var  + (1-decay)·var
//
// Inference phase: mean and var are the moving averages; nothing is updated.
//
// In both phases:
//
//	y = scale · (x - mean) / sqrt(var + eps) + shift
//
// Scale starts at 1 and is a weight-group parameter; shift starts at 0 and is
// a bias-group parameter. The moving averages start at zero.
type BatchNorm[B tensor.Backend] struct {
	channels int
	decay    float64
	eps      float64

	scale *Parameter // [C]
	shift *Parameter // [C]

	movingMean     *tensor.RawTensor // [C]
	movingVariance *tensor.RawTensor // [C]

	phase   *Phase
	backend B
}

// NewBatchNorm creates a batch normalization layer for the given channel count.
func NewBatchNorm[B tensor.Backend](b *Builder[B], scope Scope, channels int) (*BatchNorm[B], error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%s: %w: batchnorm channels %d", scope, ErrInvalidConfig, channels)
	}

	bn := &BatchNorm[B]{
		channels:       channels,
		decay:          DefaultBatchNormDecay,
		eps:            DefaultBatchNormEpsilon,
		scale:          NewParameter(scope.Name("scale"), GroupWeights, tensor.Full(tensor.Shape{channels}, 1)),
		shift:          NewParameter(scope.Name("shift"), GroupBiases, tensor.Zeros(tensor.Shape{channels})),
		movingMean:     tensor.Zeros(tensor.Shape{channels}),
		movingVariance: tensor.Zeros(tensor.Shape{channels}),
		phase:          b.Phase,
		backend:        b.Backend,
	}

	if err := b.Registry.Register(bn.scale); err != nil {
		return nil, err
	}
	if err := b.Registry.Register(bn.shift); err != nil {
		return nil, err
	}
	if err := b.Registry.RegisterBuffer(scope.Name("moving_mean"), bn.movingMean); err != nil {
		return nil, err
	}
	if err := b.Registry.RegisterBuffer(scope.Name("moving_variance"), bn.movingVariance); err != nil {
		return nil, err
	}
	return bn, nil
}

// Statistics selects the normalization statistics for x according to the
// current phase. In the training phase it also advances the moving averages.
func (bn *BatchNorm[B]) Statistics(x *tensor.RawTensor) Statistics {
	if !bn.phase.IsTraining() {
		return Statistics{
			Source:   FromMovingAverage,
			Mean:     bn.movingMean,
			Variance: bn.movingVariance,
		}
	}

	mean, variance := bn.backend.Moments(x)
	bn.updateMovingAverage(bn.movingMean, mean)
	bn.updateMovingAverage(bn.movingVariance, variance)
	return Statistics{Source: FromBatch, Mean: mean, Variance: variance}
}

func (bn *BatchNorm[B]) updateMovingAverage(moving, batch *tensor.RawTensor) {
	floats.Scale(bn.decay, moving.Data())
	floats.AddScaled(moving.Data(), 1-bn.decay, batch.Data())
}

// Forward normalizes x with the statistics chosen by the current phase.
func (bn *BatchNorm[B]) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	if channels, _ := x.Shape().Channels(); channels != bn.channels {
		panic(fmt.Sprintf("batchnorm: expected %d channels, got %d", bn.channels, channels))
	}
	stats := bn.Statistics(x)
	return bn.backend.Normalize(x, stats.Mean, stats.Variance, bn.scale.Tensor(), bn.shift.Tensor(), bn.eps)
}

// Channels returns the number of normalized channels.
func (bn *BatchNorm[B]) Channels() int {
	return bn.channels
}

// Scale returns the affine scale parameter.
func (bn *BatchNorm[B]) Scale() *Parameter {
	return bn.scale
}

// Shift returns the affine shift parameter.
func (bn *BatchNorm[B]) Shift() *Parameter {
	return bn.shift
}

// MovingMean returns the running mean buffer.
func (bn *BatchNorm[B]) MovingMean() *tensor.RawTensor {
	return bn.movingMean
}

// MovingVariance returns the running variance buffer.
func (bn *BatchNorm[B]) MovingVariance() *tensor.RawTensor {
	return bn.movingVariance
}

// Parameters returns [scale, shift].
func (bn *BatchNorm[B]) Parameters() []*Parameter {
	return []*Parameter{bn.scale, bn.shift}
}
