package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/resnet/internal/tensor"
)

// HeNormal draws a tensor from a truncated normal distribution with
// stddev = sqrt(2 / fanIn), the "He" scheme for rectified-linear networks.
//
// Samples further than two standard deviations from zero are redrawn.
//
// For a k×k convolution with in input channels, fanIn = k²·in.
func HeNormal(rng *rand.Rand, shape tensor.Shape, fanIn int) *tensor.RawTensor {
	return TruncatedNormal(rng, shape, math.Sqrt(2/float64(fanIn)))
}

// TruncatedNormal draws a tensor from N(0, stddev²) truncated to ±2·stddev.
func TruncatedNormal(rng *rand.Rand, shape tensor.Shape, stddev float64) *tensor.RawTensor {
	t := tensor.Zeros(shape)
	data := t.Data()
	for i := range data {
		z := rng.NormFloat64()
		for math.Abs(z) > 2 {
			z = rng.NormFloat64()
		}
		data[i] = z * stddev
	}
	return t
}
