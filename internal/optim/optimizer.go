// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum and a global step counter
//
// Example usage:
//
//	optimizer := optim.NewSGD(registry.Trainable(), optim.SGDConfig{
//	    LR:       0.1,
//	    Momentum: 0.9,
//	})
//
//	// Training loop
//	for step := range steps {
//	    backend.Tape().Clear()
//	    logits := net.Forward(images)
//	    out, _ := loss.Forward(logits, labels)
//	    grads := autodiff.Backward(out.Total, backend)
//
//	    // Update parameters
//	    optimizer.Step(grads)
//	}
package optim

import (
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters based on computed gradients to
// minimize the loss function during training.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes a gradient map from Backward() and updates parameters in-place.
	// Step returns only after every parameter has been updated.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// GlobalStep returns the number of completed Step calls.
	GlobalStep() int64
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient(param *nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor()]
}
