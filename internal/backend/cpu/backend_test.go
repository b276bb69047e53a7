package cpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

func randomTensor(rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	t := tensor.Zeros(shape)
	for i := range t.Data() {
		t.Data()[i] = rng.NormFloat64()
	}
	return t
}

// naiveConv2D is a direct NHWC cross-correlation used as the reference.
func naiveConv2D(input, kernel *tensor.RawTensor, stride int, pad tensor.Padding) *tensor.RawTensor {
	is, ks := input.Shape(), kernel.Shape()
	n, h, w, inC := is[0], is[1], is[2], is[3]
	k, outC := ks[0], ks[3]
	outH, outW := tensor.ConvOutputSize(h, w, k, stride, pad)
	out := tensor.Zeros(tensor.Shape{n, outH, outW, outC})
	for b := 0; b < n; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for co := 0; co < outC; co++ {
					sum := 0.0
					for ky := 0; ky < k; ky++ {
						for kx := 0; kx < k; kx++ {
							iy := oy*stride - pad.Top + ky
							ix := ox*stride - pad.Left + kx
							if iy < 0 || iy >= h || ix < 0 || ix >= w {
								continue
							}
							for ci := 0; ci < inC; ci++ {
								sum += input.Data()[((b*h+iy)*w+ix)*inC+ci] *
									kernel.Data()[((ky*k+kx)*inC+ci)*outC+co]
							}
						}
					}
					out.Data()[((b*outH+oy)*outW+ox)*outC+co] = sum
				}
			}
		}
	}
	return out
}

func TestConv2D_MatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	backend := New()

	tests := []struct {
		name   string
		hw     int
		kernel int
		stride int
	}{
		{"3x3 stride 1", 6, 3, 1},
		{"3x3 stride 2", 6, 3, 2},
		{"1x1", 5, 1, 1},
		{"odd input stride 2", 7, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := randomTensor(rng, tensor.Shape{2, tt.hw, tt.hw, 3})
			kernel := randomTensor(rng, tensor.Shape{tt.kernel, tt.kernel, 3, 4})
			pad := tensor.SamePadding(tt.hw, tt.hw, tt.kernel, tt.stride)

			got := backend.Conv2D(input, kernel, tt.stride, pad)
			want := naiveConv2D(input, kernel, tt.stride, pad)

			require.Equal(t, want.Shape(), got.Shape())
			assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-9)
		})
	}
}

func TestConv2D_SequentialMatchesParallel(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	input := randomTensor(rng, tensor.Shape{4, 5, 5, 2})
	kernel := randomTensor(rng, tensor.Shape{3, 3, 2, 3})
	pad := tensor.SamePadding(5, 5, 3, 1)

	seq := NewWithConfig(parallel.Config{Enabled: false}).Conv2D(input, kernel, 1, pad)
	par := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}).Conv2D(input, kernel, 1, pad)
	assert.InDeltaSlice(t, seq.Data(), par.Data(), 1e-12)
}

// numericGrad estimates ∂f/∂x by central differences, where f reduces to Σ(out·weights).
func numericGrad(x *tensor.RawTensor, f func() float64) []float64 {
	const h = 1e-5
	grad := make([]float64, x.NumElements())
	for i := range x.Data() {
		orig := x.Data()[i]
		x.Data()[i] = orig + h
		plus := f()
		x.Data()[i] = orig - h
		minus := f()
		x.Data()[i] = orig
		grad[i] = (plus - minus) / (2 * h)
	}
	return grad
}

func dot(a, b *tensor.RawTensor) float64 {
	sum := 0.0
	for i := range a.Data() {
		sum += a.Data()[i] * b.Data()[i]
	}
	return sum
}

func TestConv2D_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	backend := New()

	for _, stride := range []int{1, 2} {
		input := randomTensor(rng, tensor.Shape{2, 5, 5, 2})
		kernel := randomTensor(rng, tensor.Shape{3, 3, 2, 3})
		pad := tensor.SamePadding(5, 5, 3, stride)
		out := backend.Conv2D(input, kernel, stride, pad)
		upstream := randomTensor(rng, out.Shape())

		loss := func() float64 { return dot(backend.Conv2D(input, kernel, stride, pad), upstream) }

		dInput := backend.Conv2DInputBackward(input, kernel, upstream, stride, pad)
		dKernel := backend.Conv2DKernelBackward(input, kernel, upstream, stride, pad)

		assert.InDeltaSlice(t, numericGrad(input, loss), dInput.Data(), 1e-5, "stride %d input grad", stride)
		assert.InDeltaSlice(t, numericGrad(kernel, loss), dKernel.Data(), 1e-5, "stride %d kernel grad", stride)
	}
}

func TestMoments(t *testing.T) {
	backend := New()
	// Two positions, two channels: channel 0 = {1, 3}, channel 1 = {2, 6}.
	x, err := tensor.FromSlice([]float64{1, 2, 3, 6}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	mean, variance := backend.Moments(x)
	assert.InDeltaSlice(t, []float64{2, 4}, mean.Data(), 1e-12)
	assert.InDeltaSlice(t, []float64{1, 4}, variance.Data(), 1e-12)
}

func TestNormalize_ZeroMeanUnitVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	backend := New()
	x := randomTensor(rng, tensor.Shape{8, 4, 4, 3})
	for i := range x.Data() {
		x.Data()[i] = x.Data()[i]*5 + 3
	}
	mean, variance := backend.Moments(x)
	y := backend.Normalize(x, mean, variance, tensor.Full(tensor.Shape{3}, 1), tensor.Zeros(tensor.Shape{3}), 0)

	ym, yv := backend.Moments(y)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, ym.Data(), 1e-9)
	assert.InDeltaSlice(t, []float64{1, 1, 1}, yv.Data(), 1e-9)
}

// TestBatchNormTraining_Gradients checks the composition Normalize(x, Moments(x)).
func TestBatchNormTraining_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	backend := New()
	const eps = 1e-3

	x := randomTensor(rng, tensor.Shape{3, 2, 2, 2})
	scale := randomTensor(rng, tensor.Shape{2})
	offset := randomTensor(rng, tensor.Shape{2})
	upstream := randomTensor(rng, x.Shape())

	forward := func() float64 {
		mean, variance := backend.Moments(x)
		return dot(backend.Normalize(x, mean, variance, scale, offset, eps), upstream)
	}

	mean, variance := backend.Moments(x)
	dx, dmean, dvar, dscale, doffset := backend.NormalizeBackward(x, mean, variance, scale, upstream, eps)
	dxStats := backend.MomentsBackward(x, mean, dmean, dvar)
	total := backend.Add(dx, dxStats)

	assert.InDeltaSlice(t, numericGrad(x, forward), total.Data(), 1e-5)
	assert.InDeltaSlice(t, numericGrad(scale, forward), dscale.Data(), 1e-5)
	assert.InDeltaSlice(t, numericGrad(offset, forward), doffset.Data(), 1e-5)
}

func TestSoftmaxCrossEntropy(t *testing.T) {
	backend := New()
	logits, err := tensor.FromSlice([]float64{0, 0, 1000, 0}, tensor.Shape{2, 2})
	require.NoError(t, err)
	targets, err := tensor.FromSlice([]float64{1, 0, 1, 0}, tensor.Shape{2, 2})
	require.NoError(t, err)

	loss := backend.SoftmaxCrossEntropy(logits, targets)
	// Row 0: log 2; row 1: ~0 without overflow.
	assert.InDelta(t, math.Log(2)/2, loss.Item(), 1e-9)

	rng := rand.New(rand.NewSource(6))
	logits = randomTensor(rng, tensor.Shape{3, 4})
	targets = tensor.Zeros(tensor.Shape{3, 4})
	targets.Data()[1], targets.Data()[4], targets.Data()[11] = 1, 1, 1
	f := func() float64 { return backend.SoftmaxCrossEntropy(logits, targets).Item() }
	grad := backend.SoftmaxCrossEntropyBackward(logits, targets, tensor.Scalar(1))
	assert.InDeltaSlice(t, numericGrad(logits, f), grad.Data(), 1e-6)
}

func TestGlobalAvgPool(t *testing.T) {
	backend := New()
	x, err := tensor.FromSlice([]float64{1, 10, 2, 20, 3, 30, 4, 40}, tensor.Shape{1, 2, 2, 2})
	require.NoError(t, err)

	y := backend.GlobalAvgPool(x)
	assert.Equal(t, tensor.Shape{1, 1, 1, 2}, y.Shape())
	assert.InDeltaSlice(t, []float64{2.5, 25}, y.Data(), 1e-12)

	g := backend.GlobalAvgPoolBackward(x, tensor.Full(y.Shape(), 4))
	assert.InDeltaSlice(t, []float64{1, 1, 1, 1, 1, 1, 1, 1}, g.Data(), 1e-12)
}

func TestElementwise(t *testing.T) {
	backend := New()
	a, _ := tensor.FromSlice([]float64{-1, 2, -3, 4}, tensor.Shape{2, 2})
	b, _ := tensor.FromSlice([]float64{1, 1, 1, 1}, tensor.Shape{2, 2})

	assert.Equal(t, []float64{0, 3, -2, 5}, backend.Add(a, b).Data())
	assert.Equal(t, []float64{0, 2, 0, 4}, backend.ReLU(a).Data())
	assert.Equal(t, []float64{-2, 4, -6, 8}, backend.MulScalar(a, 2).Data())
	assert.Equal(t, []float64{1, 4, -1, 6}, backend.AddN(a, b, b).Data())
	assert.InDelta(t, 15.0, backend.L2Loss(a).Item(), 1e-12)

	bias, _ := tensor.FromSlice([]float64{10, 20}, tensor.Shape{2})
	assert.Equal(t, []float64{9, 22, 7, 24}, backend.AddBias(a, bias).Data())
	assert.Equal(t, []float64{2, 2}, backend.AddBiasBackward(b).Data())

	assert.Equal(t, []float64{0, 1, 0, 1}, backend.ReLUBackward(backend.ReLU(a), b).Data())
	assert.Panics(t, func() { backend.Add(a, bias) })
}
