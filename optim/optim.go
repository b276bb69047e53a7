// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the momentum SGD optimizer used to train the
// residual network.
//
// Example:
//
//	sgd := optim.NewSGD(net.Registry().Trainable(), optim.SGDConfig{LR: 0.1, Momentum: 0.9})
//	grads := autodiff.Backward(loss.Total, backend)
//	sgd.Step(grads)
package optim

import (
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/optim"
)

// Optimizer is the common interface for optimizers.
type Optimizer = optim.Optimizer

// SGD implements stochastic gradient descent with momentum.
type SGD = optim.SGD

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer over params.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}
