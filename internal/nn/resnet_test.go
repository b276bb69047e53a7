package nn_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

func TestResidualBlock_IdentityShortcut(t *testing.T) {
	b := newBuilder()
	block, err := nn.NewResidualBlock(b, nn.NewScope("block"), nn.ResidualBlockConfig{InChannels: 4, OutChannels: 4})
	require.NoError(t, err)
	assert.False(t, block.HasProjection())
	assert.Len(t, block.Parameters(), 1+2+2+2) // conv_1, bn_1, conv_2 (+bias), bn_2

	shape, err := block.OutputShape(tensor.Shape{2, 8, 8, 4})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 8, 8, 4}, shape)

	out := block.Forward(randomTensor(rand.New(rand.NewSource(1)), tensor.Shape{2, 8, 8, 4}, 0, 1))
	assert.Equal(t, shape, out.Shape())
	for _, v := range out.Data() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestResidualBlock_ProjectionShortcut(t *testing.T) {
	b := newBuilder()
	block, err := nn.NewResidualBlock(b, nn.NewScope("block"), nn.ResidualBlockConfig{
		InChannels: 4, OutChannels: 8, Subsample: true,
	})
	require.NoError(t, err)
	assert.True(t, block.HasProjection())

	proj, ok := b.Registry.Lookup("block/shortcut/weight")
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{3, 3, 4, 8}, proj.Tensor().Shape())
	_, hasBias := b.Registry.Lookup("block/shortcut/bias")
	assert.False(t, hasBias)

	shape, err := block.OutputShape(tensor.Shape{2, 8, 8, 4})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 4, 8}, shape)

	out := block.Forward(randomTensor(rand.New(rand.NewSource(2)), tensor.Shape{2, 8, 8, 4}, 0, 1))
	assert.Equal(t, shape, out.Shape())
}

func TestResidualBlock_ChannelChangeWithoutSubsample(t *testing.T) {
	_, err := nn.NewResidualBlock(newBuilder(), nn.NewScope("block"), nn.ResidualBlockConfig{InChannels: 4, OutChannels: 8})
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)
}

func TestResidualGroup(t *testing.T) {
	b := newBuilder()
	group, err := nn.NewResidualGroup(b, nn.NewScope("group_2"), nn.ResidualGroupConfig{
		InChannels: 16, OutChannels: 32, Blocks: 3, SubsampleFirst: true,
	})
	require.NoError(t, err)

	blocks := group.Blocks()
	require.Len(t, blocks, 3)
	assert.True(t, blocks[0].HasProjection())
	assert.False(t, blocks[1].HasProjection())
	assert.False(t, blocks[2].HasProjection())
	assert.Equal(t, 6, group.NumWeightedLayers())

	_, ok := b.Registry.Lookup("group_2/block_3/conv_2/bias")
	assert.True(t, ok)

	shape, err := group.OutputShape(tensor.Shape{1, 32, 32, 16})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 16, 16, 32}, shape)
}

func TestResidualGroup_RejectsEmpty(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := nn.NewResidualGroup(newBuilder(), nn.NewScope("group"), nn.ResidualGroupConfig{
			InChannels: 16, OutChannels: 16, Blocks: n,
		})
		assert.ErrorIs(t, err, nn.ErrInvalidConfig)
	}
}

func TestResNet_Depth(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		net, err := nn.NewResNet(newBuilder(), nn.DefaultResNetConfig(n))
		require.NoError(t, err)
		assert.Equal(t, 6*n+2, net.NumWeightedLayers(), "n=%d", n)

		shape, err := net.OutputShape(7)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{7, 10}, shape)

		feature, err := net.FeatureShape(7)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{7, 8, 8, 10}, feature)
	}
}

func TestResNet_RejectsInvalidConfig(t *testing.T) {
	cfg := nn.DefaultResNetConfig(0)
	_, err := nn.NewResNet(newBuilder(), cfg)
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	cfg = nn.DefaultResNetConfig(1)
	cfg.NumClasses = 1
	_, err = nn.NewResNet(newBuilder(), cfg)
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)
}

func TestResNet_Forward(t *testing.T) {
	b := newBuilder()
	net, err := nn.NewResNet(b, nn.DefaultResNetConfig(1))
	require.NoError(t, err)

	images := randomTensor(rand.New(rand.NewSource(3)), tensor.Shape{2, 32, 32, 3}, 0, 1)
	logits := net.Forward(images)
	assert.Equal(t, tensor.Shape{2, 10}, logits.Shape())
	assert.True(t, logits.IsFinite())

	b.Phase.SetTraining(false)
	logits = net.Forward(images)
	assert.Equal(t, tensor.Shape{2, 10}, logits.Shape())
	assert.True(t, logits.IsFinite())
}

func TestResNet_PoolsWholeFeatureMap(t *testing.T) {
	cfg := nn.DefaultResNetConfig(1)
	cfg.InputHeight, cfg.InputWidth, cfg.NumClasses = 12, 12, 4
	net, err := nn.NewResNet(newBuilder(), cfg)
	require.NoError(t, err)

	feature, err := net.FeatureShape(1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 3, 4}, feature)

	logits := net.Forward(randomTensor(rand.New(rand.NewSource(4)), tensor.Shape{1, 12, 12, 3}, 0, 1))
	assert.Equal(t, tensor.Shape{1, 4}, logits.Shape())
}

func TestResNet_ParameterGroups(t *testing.T) {
	b := newBuilder()
	net, err := nn.NewResNet(b, nn.DefaultResNetConfig(1))
	require.NoError(t, err)

	assert.Equal(t, len(b.Registry.Trainable()), len(net.Parameters()))
	for _, p := range b.Registry.Trainable() {
		assert.True(t, strings.HasPrefix(p.Name(), "res_net/"), p.Name())
		switch {
		case strings.HasSuffix(p.Name(), "/weight"), strings.HasSuffix(p.Name(), "/scale"):
			assert.Equal(t, nn.GroupWeights, p.Group(), p.Name())
		case strings.HasSuffix(p.Name(), "/bias"), strings.HasSuffix(p.Name(), "/shift"):
			assert.Equal(t, nn.GroupBiases, p.Group(), p.Name())
		default:
			t.Errorf("unexpected parameter %s", p.Name())
		}
	}

	for _, name := range []string{
		"res_net/stem/conv/weight",
		"res_net/stem/bn/scale",
		"res_net/group_1/block_1/conv_1/weight",
		"res_net/group_2/block_1/shortcut/weight",
		"res_net/group_3/block_1/bn_2/shift",
		"res_net/head/conv/weight",
		"res_net/head/conv/bias",
	} {
		_, ok := b.Registry.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := b.Registry.Lookup("res_net/group_1/block_1/shortcut/weight")
	assert.False(t, ok)
}
