package nn

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// ResidualBlockConfig describes one residual unit.
type ResidualBlockConfig struct {
	InChannels  int
	OutChannels int
	Subsample   bool // Halve spatial resolution with stride 2
}

// ResidualBlock computes ReLU(F(x) + shortcut(x)) where
//
//	F(x) = BN(conv_2(ReLU(BN(conv_1(x)))))
//
// conv_1 is 3×3 with stride 2 when subsampling and no bias; conv_2 is 3×3,
// stride 1, with bias. The shortcut is the identity, or a 3×3 stride-2
// projection without bias when the block subsamples.
type ResidualBlock[B tensor.Backend] struct {
	cfg ResidualBlockConfig

	conv1 *Conv2D[B]
	bn1   *BatchNorm[B]
	conv2 *Conv2D[B]
	bn2   *BatchNorm[B]
	proj  *Conv2D[B] // nil for identity shortcut

	backend B
}

// NewResidualBlock builds a residual block under scope.
//
// A block that does not subsample must keep its channel count, otherwise the
// identity shortcut could not be added to the primary path.
func NewResidualBlock[B tensor.Backend](b *Builder[B], scope Scope, cfg ResidualBlockConfig) (*ResidualBlock[B], error) {
	if !cfg.Subsample && cfg.InChannels != cfg.OutChannels {
		return nil, fmt.Errorf("%s: %w: identity shortcut cannot map %d to %d channels",
			scope, ErrInvalidConfig, cfg.InChannels, cfg.OutChannels)
	}

	stride := 1
	if cfg.Subsample {
		stride = 2
	}

	block := &ResidualBlock[B]{cfg: cfg, backend: b.Backend}
	var err error
	if block.conv1, err = NewConv2D(b, scope.Child("conv_1"), Conv2DConfig{
		InChannels: cfg.InChannels, OutChannels: cfg.OutChannels, KernelSize: 3, Stride: stride,
	}); err != nil {
		return nil, err
	}
	if block.bn1, err = NewBatchNorm(b, scope.Child("bn_1"), cfg.OutChannels); err != nil {
		return nil, err
	}
	if block.conv2, err = NewConv2D(b, scope.Child("conv_2"), Conv2DConfig{
		InChannels: cfg.OutChannels, OutChannels: cfg.OutChannels, KernelSize: 3, Stride: 1, UseBias: true,
	}); err != nil {
		return nil, err
	}
	if block.bn2, err = NewBatchNorm(b, scope.Child("bn_2"), cfg.OutChannels); err != nil {
		return nil, err
	}
	if cfg.Subsample {
		if block.proj, err = NewConv2D(b, scope.Child("shortcut"), Conv2DConfig{
			InChannels: cfg.InChannels, OutChannels: cfg.OutChannels, KernelSize: 3, Stride: 2,
		}); err != nil {
			return nil, err
		}
	}
	return block, nil
}

// OutputShape infers the block output for an NHWC input shape and checks that
// the primary and shortcut paths agree.
func (r *ResidualBlock[B]) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	primary, err := r.conv1.OutputShape(in)
	if err != nil {
		return nil, err
	}
	if primary, err = r.conv2.OutputShape(primary); err != nil {
		return nil, err
	}
	shortcut := in
	if r.proj != nil {
		if shortcut, err = r.proj.OutputShape(in); err != nil {
			return nil, err
		}
	}
	if !primary.Equal(shortcut) {
		return nil, fmt.Errorf("%w: residual paths disagree: primary %v, shortcut %v", ErrInvalidConfig, primary, shortcut)
	}
	return primary, nil
}

// Forward performs the forward pass.
func (r *ResidualBlock[B]) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	h := r.backend.ReLU(r.bn1.Forward(r.conv1.Forward(x)))
	h = r.bn2.Forward(r.conv2.Forward(h))

	shortcut := x
	if r.proj != nil {
		shortcut = r.proj.Forward(x)
	}
	return r.backend.ReLU(r.backend.Add(h, shortcut))
}

// NumWeightedLayers returns the primary-path convolutions (the shortcut
// projection is not counted).
func (r *ResidualBlock[B]) NumWeightedLayers() int {
	return 2
}

// HasProjection reports whether the shortcut is a projection.
func (r *ResidualBlock[B]) HasProjection() bool {
	return r.proj != nil
}

// Parameters returns all block parameters.
func (r *ResidualBlock[B]) Parameters() []*Parameter {
	params := append(r.conv1.Parameters(), r.bn1.Parameters()...)
	params = append(params, r.conv2.Parameters()...)
	params = append(params, r.bn2.Parameters()...)
	if r.proj != nil {
		params = append(params, r.proj.Parameters()...)
	}
	return params
}

// ResidualGroupConfig describes a stack of residual blocks.
type ResidualGroupConfig struct {
	InChannels     int
	OutChannels    int
	Blocks         int  // n ≥ 1
	SubsampleFirst bool // Whether block 1 subsamples
}

// ResidualGroup stacks n residual blocks. Block 1 maps InChannels to
// OutChannels and subsamples when requested; blocks 2..n keep OutChannels
// and never subsample.
type ResidualGroup[B tensor.Backend] struct {
	blocks []*ResidualBlock[B]
}

// NewResidualGroup builds a group of cfg.Blocks blocks named block_1..block_n.
func NewResidualGroup[B tensor.Backend](b *Builder[B], scope Scope, cfg ResidualGroupConfig) (*ResidualGroup[B], error) {
	if cfg.Blocks < 1 {
		return nil, fmt.Errorf("%s: %w: residual group needs at least one block, got %d", scope, ErrInvalidConfig, cfg.Blocks)
	}

	group := &ResidualGroup[B]{blocks: make([]*ResidualBlock[B], 0, cfg.Blocks)}
	for i := 1; i <= cfg.Blocks; i++ {
		blockCfg := ResidualBlockConfig{InChannels: cfg.OutChannels, OutChannels: cfg.OutChannels}
		if i == 1 {
			blockCfg = ResidualBlockConfig{
				InChannels:  cfg.InChannels,
				OutChannels: cfg.OutChannels,
				Subsample:   cfg.SubsampleFirst,
			}
		}
		block, err := NewResidualBlock(b, scope.Indexed("block", i), blockCfg)
		if err != nil {
			return nil, err
		}
		group.blocks = append(group.blocks, block)
	}
	return group, nil
}

// Blocks returns the blocks in order.
func (g *ResidualGroup[B]) Blocks() []*ResidualBlock[B] {
	return g.blocks
}

// OutputShape threads an input shape through every block.
func (g *ResidualGroup[B]) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	shape := in
	for i, block := range g.blocks {
		var err error
		if shape, err = block.OutputShape(shape); err != nil {
			return nil, fmt.Errorf("block %d: %w", i+1, err)
		}
	}
	return shape, nil
}

// Forward performs the forward pass.
func (g *ResidualGroup[B]) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	for _, block := range g.blocks {
		x = block.Forward(x)
	}
	return x
}

// NumWeightedLayers returns 2 per block.
func (g *ResidualGroup[B]) NumWeightedLayers() int {
	total := 0
	for _, block := range g.blocks {
		total += block.NumWeightedLayers()
	}
	return total
}

// Parameters returns all group parameters.
func (g *ResidualGroup[B]) Parameters() []*Parameter {
	var params []*Parameter
	for _, block := range g.blocks {
		params = append(params, block.Parameters()...)
	}
	return params
}
