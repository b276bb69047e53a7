package cpu

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/resnet/internal/tensor"
)

// Moments computes the per-channel mean and (biased) variance of x over every
// axis except the last one. For an NHWC feature map that is N, H and W.
func (cpu *CPUBackend) Moments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	channels, positions := x.Shape().Channels()
	mean = tensor.Zeros(tensor.Shape{channels})
	variance = tensor.Zeros(tensor.Shape{channels})
	data := x.Data()
	m := mean.Data()
	v := variance.Data()

	for p := 0; p < positions; p++ {
		floats.Add(m, data[p*channels:(p+1)*channels])
	}
	floats.Scale(1/float64(positions), m)

	for p := 0; p < positions; p++ {
		row := data[p*channels : (p+1)*channels]
		for c, val := range row {
			d := val - m[c]
			v[c] += d * d
		}
	}
	floats.Scale(1/float64(positions), v)
	return mean, variance
}

// MomentsBackward maps gradients of the batch mean and variance back onto x:
//
//	∂L/∂x = ∂L/∂mean / P + ∂L/∂var · 2(x - mean) / P
//
// where P is the number of positions per channel. Either gradient may be nil.
func (cpu *CPUBackend) MomentsBackward(x, mean, meanGrad, varianceGrad *tensor.RawTensor) *tensor.RawTensor {
	channels, positions := x.Shape().Channels()
	out := tensor.Zeros(x.Shape())
	data := x.Data()
	dst := out.Data()
	m := mean.Data()
	inv := 1 / float64(positions)

	dm := make([]float64, channels)
	dv := make([]float64, channels)
	if meanGrad != nil {
		copy(dm, meanGrad.Data())
	}
	if varianceGrad != nil {
		copy(dv, varianceGrad.Data())
	}

	for p := 0; p < positions; p++ {
		off := p * channels
		for c := 0; c < channels; c++ {
			dst[off+c] = dm[c]*inv + dv[c]*2*(data[off+c]-m[c])*inv
		}
	}
	return out
}

// Normalize computes scale · (x - mean) / sqrt(variance + eps) + offset per channel.
func (cpu *CPUBackend) Normalize(x, mean, variance, scale, offset *tensor.RawTensor, eps float64) *tensor.RawTensor {
	for _, v := range []*tensor.RawTensor{mean, variance, scale, offset} {
		mustChannelVector("normalize", x, v)
	}
	channels, positions := x.Shape().Channels()
	invStd := inverseStd(variance.Data(), eps)

	// Fold the affine transform: y = x·a + b with a = scale·invStd, b = offset - mean·a.
	a := make([]float64, channels)
	floats.MulTo(a, scale.Data(), invStd)
	b := make([]float64, channels)
	floats.MulTo(b, mean.Data(), a)
	floats.SubTo(b, offset.Data(), b)

	out := tensor.Zeros(x.Shape())
	src := x.Data()
	dst := out.Data()
	for p := 0; p < positions; p++ {
		off := p * channels
		row := dst[off : off+channels]
		floats.MulTo(row, src[off:off+channels], a)
		floats.Add(row, b)
	}
	return out
}

// NormalizeBackward returns the gradients of Normalize with respect to x,
// mean, variance, scale and offset.
//
//	x̂         = (x - mean)·s,  s = 1/sqrt(var + eps)
//	∂L/∂offset = Σ dy
//	∂L/∂scale  = Σ dy·x̂
//	∂L/∂x      = dy·scale·s
//	∂L/∂mean   = -scale·s·Σ dy
//	∂L/∂var    = -½·scale·s²·Σ dy·x̂
func (cpu *CPUBackend) NormalizeBackward(
	x, mean, variance, scale, grad *tensor.RawTensor, eps float64,
) (dx, dmean, dvariance, dscale, doffset *tensor.RawTensor) {
	mustSameShape("normalize_backward", x, grad)
	channels, positions := x.Shape().Channels()
	invStd := inverseStd(variance.Data(), eps)
	m := mean.Data()
	sc := scale.Data()

	dx = tensor.Zeros(x.Shape())
	dmean = tensor.Zeros(tensor.Shape{channels})
	dvariance = tensor.Zeros(tensor.Shape{channels})
	dscale = tensor.Zeros(tensor.Shape{channels})
	doffset = tensor.Zeros(tensor.Shape{channels})

	src := x.Data()
	g := grad.Data()
	dxData := dx.Data()
	ds := dscale.Data()
	do := doffset.Data()

	for p := 0; p < positions; p++ {
		off := p * channels
		for c := 0; c < channels; c++ {
			dy := g[off+c]
			xhat := (src[off+c] - m[c]) * invStd[c]
			ds[c] += dy * xhat
			do[c] += dy
			dxData[off+c] = dy * sc[c] * invStd[c]
		}
	}

	dm := dmean.Data()
	dv := dvariance.Data()
	for c := 0; c < channels; c++ {
		dm[c] = -sc[c] * invStd[c] * do[c]
		dv[c] = -0.5 * sc[c] * invStd[c] * invStd[c] * ds[c]
	}
	return dx, dmean, dvariance, dscale, doffset
}

func inverseStd(variance []float64, eps float64) []float64 {
	out := make([]float64, len(variance))
	for i, v := range variance {
		out[i] = 1 / math.Sqrt(v+eps)
	}
	return out
}
