package cpu

import (
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/resnet/internal/tensor"
)

// Add performs element-wise addition of two tensors with identical shapes.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	mustSameShape("add", a, b)
	out := tensor.Zeros(a.Shape())
	floats.AddTo(out.Data(), a.Data(), b.Data())
	return out
}

// AddN sums any number of tensors with identical shapes.
func (cpu *CPUBackend) AddN(xs ...*tensor.RawTensor) *tensor.RawTensor {
	if len(xs) == 0 {
		return tensor.Scalar(0)
	}
	out := xs[0].Clone()
	for _, x := range xs[1:] {
		mustSameShape("add_n", out, x)
		floats.Add(out.Data(), x.Data())
	}
	return out
}

// AddBias adds a per-channel bias [C] to every position of x.
func (cpu *CPUBackend) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	mustChannelVector("add_bias", x, bias)
	channels, positions := x.Shape().Channels()
	out := x.Clone()
	data := out.Data()
	b := bias.Data()
	for p := 0; p < positions; p++ {
		floats.Add(data[p*channels:(p+1)*channels], b)
	}
	return out
}

// AddBiasBackward reduces grad over every position, yielding the bias gradient [C].
func (cpu *CPUBackend) AddBiasBackward(grad *tensor.RawTensor) *tensor.RawTensor {
	channels, positions := grad.Shape().Channels()
	out := tensor.Zeros(tensor.Shape{channels})
	g := grad.Data()
	for p := 0; p < positions; p++ {
		floats.Add(out.Data(), g[p*channels:(p+1)*channels])
	}
	return out
}

// MulScalar multiplies every element by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	out := tensor.Zeros(x.Shape())
	floats.ScaleTo(out.Data(), s, x.Data())
	return out
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.Zeros(x.Shape())
	src := x.Data()
	dst := out.Data()
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
	return out
}

// ReLUBackward passes grad through where the forward output was positive.
func (cpu *CPUBackend) ReLUBackward(output, grad *tensor.RawTensor) *tensor.RawTensor {
	mustSameShape("relu_backward", output, grad)
	out := tensor.Zeros(grad.Shape())
	y := output.Data()
	g := grad.Data()
	dst := out.Data()
	for i := range dst {
		if y[i] > 0 {
			dst[i] = g[i]
		}
	}
	return out
}

// GlobalAvgPool averages each channel over the full spatial extent:
// [N, H, W, C] -> [N, 1, 1, C].
func (cpu *CPUBackend) GlobalAvgPool(x *tensor.RawTensor) *tensor.RawTensor {
	mustRank("global_avg_pool", x, 4)
	s := x.Shape()
	n, area, c := s[0], s[1]*s[2], s[3]
	out := tensor.Zeros(tensor.Shape{n, 1, 1, c})
	src := x.Data()
	dst := out.Data()
	for b := 0; b < n; b++ {
		row := dst[b*c : (b+1)*c]
		for p := 0; p < area; p++ {
			off := (b*area + p) * c
			floats.Add(row, src[off:off+c])
		}
		floats.Scale(1/float64(area), row)
	}
	return out
}

// GlobalAvgPoolBackward spreads grad [N,1,1,C] uniformly over input's spatial extent.
func (cpu *CPUBackend) GlobalAvgPoolBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	s := input.Shape()
	n, area, c := s[0], s[1]*s[2], s[3]
	out := tensor.Zeros(s)
	g := grad.Data()
	dst := out.Data()
	scale := 1 / float64(area)
	for b := 0; b < n; b++ {
		row := g[b*c : (b+1)*c]
		for p := 0; p < area; p++ {
			off := (b*area + p) * c
			floats.AddScaled(dst[off:off+c], scale, row)
		}
	}
	return out
}
