package autodiff_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/tensor"
)

func randomTensor(rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	out := tensor.Zeros(shape)
	for i := range out.Data() {
		out.Data()[i] = rng.NormFloat64()
	}
	return out
}

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

func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	assert.Equal(t, "Autodiff(CPU)", backend.Name())
}

func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	assert.False(t, tape.IsRecording())
	tape.StartRecording()
	assert.True(t, tape.IsRecording())
	tape.StopRecording()
	assert.False(t, tape.IsRecording())
}

func TestTape_OnlyRecordsWhileRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Full(tensor.Shape{2, 2}, 1)

	backend.ReLU(x)
	assert.Equal(t, 0, backend.Tape().NumOps())

	backend.Tape().StartRecording()
	backend.ReLU(x)
	backend.MulScalar(x, 2)
	assert.Equal(t, 2, backend.Tape().NumOps())

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestBackward_PanicsWithoutOps(t *testing.T) {
	backend := autodiff.New(cpu.New())
	assert.Panics(t, func() { autodiff.Backward(tensor.Scalar(1), backend) })
}

func TestBackward_L2Loss(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float64{1, -2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	loss := backend.L2Loss(x)
	assert.InDelta(t, 7.0, loss.Item(), 1e-12)

	grads := autodiff.Backward(loss, backend)
	assert.Equal(t, []float64{1, -2, 3}, grads[x].Data())
}

func TestBackward_AccumulatesSharedInputs(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float64{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	y := backend.Add(x, x)
	z := backend.AddN(y, x, backend.MulScalar(x, 3))
	loss := backend.L2Loss(z)

	// z = 6x, loss = 18 Σ x², ∂loss/∂x = 36x.
	grads := autodiff.Backward(loss, backend)
	assert.InDeltaSlice(t, []float64{36, 72}, grads[x].Data(), 1e-12)
}

func TestBackward_NoGradientForUnrelatedTensors(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a := tensor.Full(tensor.Shape{2}, 1)
	b := tensor.Full(tensor.Shape{2}, 2)
	backend.ReLU(b)
	loss := backend.L2Loss(a)

	grads := autodiff.Backward(loss, backend)
	assert.Contains(t, grads, a)
	assert.NotContains(t, grads, b)
}

// Gradients flow through the batch statistics when mean and variance come
// from Moments on the same input.
func TestBackward_BatchNormThroughMoments(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	inner := cpu.New()
	x := randomTensor(rng, tensor.Shape{3, 2, 2, 2})
	scale := randomTensor(rng, tensor.Shape{2})
	offset := randomTensor(rng, tensor.Shape{2})
	upstream := randomTensor(rng, x.Shape())

	forward := func(b tensor.Backend) *tensor.RawTensor {
		mean, variance := b.Moments(x)
		y := b.Normalize(x, mean, variance, scale, offset, 1e-3)
		// Weighted sum via L2 of a shifted copy keeps the graph scalar.
		return b.L2Loss(b.Add(y, upstream))
	}

	backend := autodiff.New(inner)
	backend.Tape().StartRecording()
	grads := autodiff.Backward(forward(backend), backend)

	loss := func() float64 { return forward(inner).Item() }
	assert.InDeltaSlice(t, numericGrad(x, loss), grads[x].Data(), 1e-5)
	assert.InDeltaSlice(t, numericGrad(scale, loss), grads[scale].Data(), 1e-5)
	assert.InDeltaSlice(t, numericGrad(offset, loss), grads[offset].Data(), 1e-5)
}

func TestBackward_ConvClassifierChain(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	inner := cpu.New()
	images := randomTensor(rng, tensor.Shape{2, 4, 4, 3})
	kernel := randomTensor(rng, tensor.Shape{3, 3, 3, 4})
	bias := randomTensor(rng, tensor.Shape{4})
	labels, err := tensor.FromSlice([]float64{
		0, 1, 0, 0,
		0, 0, 0, 1,
	}, tensor.Shape{2, 4})
	require.NoError(t, err)

	pad := tensor.SamePadding(4, 4, 3, 2)
	forward := func(b tensor.Backend) *tensor.RawTensor {
		h := b.AddBias(b.Conv2D(images, kernel, 2, pad), bias)
		h = b.ReLU(h)
		logits := b.Reshape(b.GlobalAvgPool(h), tensor.Shape{2, 4})
		entropy := b.SoftmaxCrossEntropy(logits, labels)
		decay := b.MulScalar(b.L2Loss(kernel), 0.01)
		return b.AddN(entropy, decay)
	}

	backend := autodiff.New(inner)
	backend.Tape().StartRecording()
	loss := forward(backend)
	require.True(t, loss.IsFinite())
	grads := autodiff.Backward(loss, backend)

	numeric := func() float64 { return forward(inner).Item() }
	assert.InDeltaSlice(t, numericGrad(kernel, numeric), grads[kernel].Data(), 1e-5)
	assert.InDeltaSlice(t, numericGrad(bias, numeric), grads[bias].Data(), 1e-5)
	assert.InDeltaSlice(t, numericGrad(images, numeric), grads[images].Data(), 1e-5)
}
