// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the CIFAR-style residual network and its building
// blocks.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	builder := nn.NewBuilder(backend, 1)
//	net, err := nn.NewResNet(builder, nn.DefaultResNetConfig(5)) // ResNet-32
//	loss, err := nn.NewLoss(builder, 10, 1e-4)
//
//	backend.Tape().StartRecording()
//	out, err := loss.Forward(net.Forward(images), labels)
//	grads := autodiff.Backward(out.Total, backend)
package nn

import (
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// ErrInvalidConfig is returned when a module cannot be built from its configuration.
var ErrInvalidConfig = nn.ErrInvalidConfig

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter is a trainable tensor tagged with a decay group.
type Parameter = nn.Parameter

// Registry holds every parameter and buffer of a network by scope path.
type Registry = nn.Registry

// Phase switches batch normalization between training and inference.
type Phase = nn.Phase

// Builder carries the backend, registry, phase and random source used while
// constructing a network.
type Builder[B tensor.Backend] = nn.Builder[B]

// NewBuilder creates a Builder with a fresh registry in training phase.
func NewBuilder[B tensor.Backend](backend B, seed int64) *Builder[B] {
	return nn.NewBuilder(backend, seed)
}

// Network

// ResNet is the 6n+2 layer residual classifier.
type ResNet[B tensor.Backend] = nn.ResNet[B]

// ResNetConfig parameterizes ResNet.
type ResNetConfig = nn.ResNetConfig

// DefaultResNetConfig returns the 32×32×3, 10-class configuration with n
// blocks per group.
func DefaultResNetConfig(n int) ResNetConfig {
	return nn.DefaultResNetConfig(n)
}

// NewResNet builds the network and registers its parameters.
func NewResNet[B tensor.Backend](b *Builder[B], cfg ResNetConfig) (*ResNet[B], error) {
	return nn.NewResNet(b, cfg)
}

// Layers

// Conv2D is a 2D convolution with SAME or VALID padding.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// Conv2DConfig configures Conv2D.
type Conv2DConfig = nn.Conv2DConfig

// BatchNorm is spatial batch normalization with moving averages.
type BatchNorm[B tensor.Backend] = nn.BatchNorm[B]

// ResidualBlock is two 3×3 convolutions with a shortcut.
type ResidualBlock[B tensor.Backend] = nn.ResidualBlock[B]

// ResidualGroup is a stack of residual blocks.
type ResidualGroup[B tensor.Backend] = nn.ResidualGroup[B]

// Objective

// Loss is softmax cross-entropy plus L2 weight decay.
type Loss[B tensor.Backend] = nn.Loss[B]

// LossOutput holds the scalar loss components.
type LossOutput = nn.LossOutput

// NewLoss creates the training objective.
func NewLoss[B tensor.Backend](b *Builder[B], numClasses int, weightDecay float64) (*Loss[B], error) {
	return nn.NewLoss(b, numClasses, weightDecay)
}

// Accuracy returns the fraction of rows whose arg-max equals the label.
func Accuracy(logits *tensor.RawTensor, labels []int) float64 {
	return nn.Accuracy(logits, labels)
}

// Checkpoints

// Checkpoint is a training state snapshot.
type Checkpoint = nn.Checkpoint

// LoadCheckpoint restores a checkpoint into registry and optimizer.
func LoadCheckpoint(path string, registry *Registry, optimizer nn.OptimizerState) (*Checkpoint, error) {
	return nn.LoadCheckpoint(path, registry, optimizer)
}
