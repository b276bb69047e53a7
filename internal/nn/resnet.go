package nn

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// Channel widths of the stem and the three residual groups.
const (
	stemChannels   = 16
	group2Channels = 32
	group3Channels = 64
)

// ResNetConfig parameterizes the CIFAR-style residual network.
type ResNetConfig struct {
	Blocks        int // n: blocks per group, total depth 6n+2
	NumClasses    int
	InputHeight   int
	InputWidth    int
	InputChannels int
}

// DefaultResNetConfig returns the 32×32×3, 10-class configuration with n blocks per group.
func DefaultResNetConfig(n int) ResNetConfig {
	return ResNetConfig{
		Blocks:        n,
		NumClasses:    10,
		InputHeight:   32,
		InputWidth:    32,
		InputChannels: 3,
	}
}

// Validate checks the configuration.
func (c ResNetConfig) Validate() error {
	if c.Blocks < 1 {
		return fmt.Errorf("%w: blocks per group must be >= 1, got %d", ErrInvalidConfig, c.Blocks)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("%w: need at least 2 classes, got %d", ErrInvalidConfig, c.NumClasses)
	}
	if c.InputHeight <= 0 || c.InputWidth <= 0 || c.InputChannels <= 0 {
		return fmt.Errorf("%w: input shape %dx%dx%d", ErrInvalidConfig, c.InputHeight, c.InputWidth, c.InputChannels)
	}
	return nil
}

// ResNet is the end-to-end classifier:
//
//  1. Stem: 3×3 conv (in→16, no bias) → BN → ReLU
//  2. Group 1: 16→16, n blocks
//  3. Group 2: 16→32, n blocks, first block subsamples
//  4. Group 3: 32→64, n blocks, first block subsamples
//  5. Head: 1×1 conv (64→classes, bias)
//  6. Global average pool over the remaining spatial extent
//  7. Squeeze to [batch, classes]
//
// Channel width doubles exactly where resolution halves.
type ResNet[B tensor.Backend] struct {
	cfg ResNetConfig

	stemConv *Conv2D[B]
	stemBN   *BatchNorm[B]
	groups   [3]*ResidualGroup[B]
	head     *Conv2D[B]

	registry *Registry
	phase    *Phase
	backend  B
}

// NewResNet builds the network under the "res_net" scope and verifies every
// shape statically, so a mismatch surfaces here rather than in Forward.
func NewResNet[B tensor.Backend](b *Builder[B], cfg ResNetConfig) (*ResNet[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scope := NewScope("res_net")
	net := &ResNet[B]{cfg: cfg, registry: b.Registry, phase: b.Phase, backend: b.Backend}

	var err error
	if net.stemConv, err = NewConv2D(b, scope.Child("stem").Child("conv"), Conv2DConfig{
		InChannels: cfg.InputChannels, OutChannels: stemChannels, KernelSize: 3, Stride: 1,
	}); err != nil {
		return nil, err
	}
	if net.stemBN, err = NewBatchNorm(b, scope.Child("stem").Child("bn"), stemChannels); err != nil {
		return nil, err
	}

	groups := [3]ResidualGroupConfig{
		{InChannels: stemChannels, OutChannels: stemChannels, Blocks: cfg.Blocks},
		{InChannels: stemChannels, OutChannels: group2Channels, Blocks: cfg.Blocks, SubsampleFirst: true},
		{InChannels: group2Channels, OutChannels: group3Channels, Blocks: cfg.Blocks, SubsampleFirst: true},
	}
	for i, groupCfg := range groups {
		if net.groups[i], err = NewResidualGroup(b, scope.Indexed("group", i+1), groupCfg); err != nil {
			return nil, err
		}
	}

	if net.head, err = NewConv2D(b, scope.Child("head").Child("conv"), Conv2DConfig{
		InChannels: group3Channels, OutChannels: cfg.NumClasses, KernelSize: 1, Stride: 1, UseBias: true,
	}); err != nil {
		return nil, err
	}

	if _, err := net.OutputShape(1); err != nil {
		return nil, err
	}
	return net, nil
}

// Config returns the network configuration.
func (n *ResNet[B]) Config() ResNetConfig {
	return n.cfg
}

// Registry returns the registry holding the network's parameters.
func (n *ResNet[B]) Registry() *Registry {
	return n.registry
}

// Phase returns the training/inference switch shared by the network.
func (n *ResNet[B]) Phase() *Phase {
	return n.phase
}

// Groups returns the three residual groups.
func (n *ResNet[B]) Groups() []*ResidualGroup[B] {
	return n.groups[:]
}

// FeatureShape returns the NHWC shape entering global pooling.
func (n *ResNet[B]) FeatureShape(batch int) (tensor.Shape, error) {
	shape := tensor.Shape{batch, n.cfg.InputHeight, n.cfg.InputWidth, n.cfg.InputChannels}
	shape, err := n.stemConv.OutputShape(shape)
	if err != nil {
		return nil, fmt.Errorf("stem: %w", err)
	}
	for i, group := range n.groups {
		if shape, err = group.OutputShape(shape); err != nil {
			return nil, fmt.Errorf("group %d: %w", i+1, err)
		}
	}
	if shape, err = n.head.OutputShape(shape); err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	return shape, nil
}

// OutputShape returns [batch, classes].
func (n *ResNet[B]) OutputShape(batch int) (tensor.Shape, error) {
	if _, err := n.FeatureShape(batch); err != nil {
		return nil, err
	}
	return tensor.Shape{batch, n.cfg.NumClasses}, nil
}

// Forward maps [batch, H, W, C] images to [batch, classes] logits.
func (n *ResNet[B]) Forward(images *tensor.RawTensor) *tensor.RawTensor {
	shape := images.Shape()
	want := tensor.Shape{n.cfg.InputHeight, n.cfg.InputWidth, n.cfg.InputChannels}
	if len(shape) != 4 || !shape[1:].Equal(want) {
		panic(fmt.Sprintf("resnet: expected input [N,%d,%d,%d], got %v", want[0], want[1], want[2], shape))
	}

	h := n.backend.ReLU(n.stemBN.Forward(n.stemConv.Forward(images)))
	for _, group := range n.groups {
		h = group.Forward(h)
	}
	h = n.head.Forward(h)
	pooled := n.backend.GlobalAvgPool(h)
	return n.backend.Reshape(pooled, tensor.Shape{shape[0], n.cfg.NumClasses})
}

// NumWeightedLayers returns 6n+2: the stem, two convolutions per block and the head.
func (n *ResNet[B]) NumWeightedLayers() int {
	total := 2
	for _, group := range n.groups {
		total += group.NumWeightedLayers()
	}
	return total
}

// Parameters returns every trainable parameter in construction order.
func (n *ResNet[B]) Parameters() []*Parameter {
	params := append(n.stemConv.Parameters(), n.stemBN.Parameters()...)
	for _, group := range n.groups {
		params = append(params, group.Parameters()...)
	}
	return append(params, n.head.Parameters()...)
}
