// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/autodiff"
	"github.com/born-ml/resnet/backend/cpu"
	"github.com/born-ml/resnet/nn"
	"github.com/born-ml/resnet/optim"
	"github.com/born-ml/resnet/tensor"
)

// TestResNetThroughPublicAPI builds ResNet-8 and runs one training step
// using only the exported packages.
func TestResNetThroughPublicAPI(t *testing.T) {
	backend := autodiff.New(cpu.New())
	builder := nn.NewBuilder(backend, 1)

	cfg := nn.DefaultResNetConfig(1)
	cfg.InputHeight, cfg.InputWidth = 8, 8
	net, err := nn.NewResNet(builder, cfg)
	require.NoError(t, err)
	assert.Equal(t, 8, net.NumWeightedLayers())

	var module nn.Module[*autodiff.Backend[*cpu.Backend]] = net
	require.NotEmpty(t, module.Parameters())

	loss, err := nn.NewLoss(builder, cfg.NumClasses, 1e-4)
	require.NoError(t, err)
	sgd := optim.NewSGD(builder.Registry.Trainable(), optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	images := tensor.Full(tensor.Shape{2, 8, 8, 3}, 0.5)
	images.Data()[0] = -1
	labels := []int{3, 7}

	backend.Tape().StartRecording()
	logits := net.Forward(images)
	assert.Equal(t, tensor.Shape{2, 10}, logits.Shape())
	out, err := loss.Forward(logits, labels)
	require.NoError(t, err)
	grads := autodiff.Backward(out.Total, backend)
	backend.Tape().StopRecording()

	sgd.Step(grads)
	assert.Equal(t, int64(1), sgd.GlobalStep())
	assert.False(t, math.IsNaN(out.Total.Item()))

	acc := nn.Accuracy(logits, labels)
	assert.GreaterOrEqual(t, acc, 0.0)
	assert.LessOrEqual(t, acc, 1.0)
}

func TestNewResNet_InvalidDepth(t *testing.T) {
	builder := nn.NewBuilder(cpu.New(), 1)
	_, err := nn.NewResNet(builder, nn.DefaultResNetConfig(0))
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)
}
