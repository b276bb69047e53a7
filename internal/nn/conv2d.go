package nn

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// PaddingMode selects how a convolution pads its input.
type PaddingMode int

const (
	// PaddingSame pads so that out = ceil(in / stride). When the total padding
	// is odd the extra row/column goes to the bottom/right.
	PaddingSame PaddingMode = iota
	// PaddingValid applies no padding.
	PaddingValid
)

// String returns "SAME" or "VALID".
func (m PaddingMode) String() string {
	if m == PaddingValid {
		return "VALID"
	}
	return "SAME"
}

// Conv2DConfig describes a square-kernel 2D convolution.
type Conv2DConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     PaddingMode
	UseBias     bool
}

// Validate checks the configuration.
func (c Conv2DConfig) Validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("%w: conv2d channels in=%d, out=%d", ErrInvalidConfig, c.InChannels, c.OutChannels)
	}
	if c.KernelSize <= 0 {
		return fmt.Errorf("%w: conv2d kernel size %d", ErrInvalidConfig, c.KernelSize)
	}
	if c.Stride <= 0 {
		return fmt.Errorf("%w: conv2d stride %d", ErrInvalidConfig, c.Stride)
	}
	return nil
}

// Conv2D is a 2D convolutional layer.
//
// Performs convolution: output = Conv2D(input, weight) + bias
//
// Input shape:  [batch, height, width, in_channels]
// Weight shape: [kernel, kernel, in_channels, out_channels]
// Bias shape:   [out_channels]
// Output shape: [batch, out_h, out_w, out_channels]
//
// Example:
//
//	conv, err := nn.NewConv2D(builder, scope.Child("conv_1"), nn.Conv2DConfig{
//	    InChannels: 16, OutChannels: 32, KernelSize: 3, Stride: 2,
//	})
//	output := conv.Forward(input) // [N, 16, 16, 32] for a [N, 32, 32, 16] input
type Conv2D[B tensor.Backend] struct {
	cfg Conv2DConfig

	weight *Parameter // [k, k, in_channels, out_channels]
	bias   *Parameter // [out_channels] or nil

	backend B
}

// NewConv2D creates a convolution with He-initialized weights and a zero bias,
// registering the kernel in the weight group and the bias in the bias group.
func NewConv2D[B tensor.Backend](b *Builder[B], scope Scope, cfg Conv2DConfig) (*Conv2D[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", scope, err)
	}

	fanIn := cfg.KernelSize * cfg.KernelSize * cfg.InChannels
	kernel := HeNormal(b.Rand, tensor.Shape{cfg.KernelSize, cfg.KernelSize, cfg.InChannels, cfg.OutChannels}, fanIn)
	weight := NewParameter(scope.Name("weight"), GroupWeights, kernel)
	if err := b.Registry.Register(weight); err != nil {
		return nil, err
	}

	var bias *Parameter
	if cfg.UseBias {
		bias = NewParameter(scope.Name("bias"), GroupBiases, tensor.Zeros(tensor.Shape{cfg.OutChannels}))
		if err := b.Registry.Register(bias); err != nil {
			return nil, err
		}
	}

	return &Conv2D[B]{
		cfg:     cfg,
		weight:  weight,
		bias:    bias,
		backend: b.Backend,
	}, nil
}

// Config returns the layer configuration.
func (c *Conv2D[B]) Config() Conv2DConfig {
	return c.cfg
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *Parameter {
	return c.weight
}

// Bias returns the bias parameter, or nil when the layer has none.
func (c *Conv2D[B]) Bias() *Parameter {
	return c.bias
}

// OutputShape infers the output shape for an NHWC input shape.
func (c *Conv2D[B]) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 4 {
		return nil, fmt.Errorf("%w: conv2d expects [N,H,W,C] input, got %v", ErrInvalidConfig, in)
	}
	if in[3] != c.cfg.InChannels {
		return nil, fmt.Errorf("%w: conv2d expects %d input channels, got %d", ErrInvalidConfig, c.cfg.InChannels, in[3])
	}
	outH, outW := tensor.ConvOutputSize(in[1], in[2], c.cfg.KernelSize, c.cfg.Stride, c.padding(in[1], in[2]))
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: conv2d input %dx%d too small for kernel %d", ErrInvalidConfig, in[1], in[2], c.cfg.KernelSize)
	}
	return tensor.Shape{in[0], outH, outW, c.cfg.OutChannels}, nil
}

func (c *Conv2D[B]) padding(inH, inW int) tensor.Padding {
	if c.cfg.Padding == PaddingValid {
		return tensor.Padding{}
	}
	return tensor.SamePadding(inH, inW, c.cfg.KernelSize, c.cfg.Stride)
}

// Forward performs the forward pass.
func (c *Conv2D[B]) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,H,W,C], got %dD", len(shape)))
	}
	out := c.backend.Conv2D(input, c.weight.Tensor(), c.cfg.Stride, c.padding(shape[1], shape[2]))
	if c.bias != nil {
		out = c.backend.AddBias(out, c.bias.Tensor())
	}
	return out
}

// Parameters returns the kernel and, if present, the bias.
func (c *Conv2D[B]) Parameters() []*Parameter {
	if c.bias == nil {
		return []*Parameter{c.weight}
	}
	return []*Parameter{c.weight, c.bias}
}
