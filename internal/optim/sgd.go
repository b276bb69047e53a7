package optim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

const globalStepKey = "global_step"

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Parameters are updated concurrently; Step returns only once every update
// has been applied, so no partially updated state is visible to the next
// forward pass. No gradient clipping or per-parameter learning rates.
type SGD struct {
	params     []*nn.Parameter
	lr         float64
	momentum   float64
	velocities []*tensor.RawTensor // index-aligned with params
	globalStep int64
	parallel   parallel.Config
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	sgd := optim.NewSGD(registry.Trainable(), optim.SGDConfig{
//	    LR:       0.1,
//	    Momentum: 0.9,
//	})
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}

	s := &SGD{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
		parallel: parallel.DefaultConfig(),
	}
	if s.momentum != 0 {
		s.velocities = make([]*tensor.RawTensor, len(params))
		for i, p := range params {
			s.velocities[i] = tensor.Zeros(p.Tensor().Shape())
		}
	}
	return s
}

// Step performs a single optimization step and increments the global step.
//
// Parameters with no gradient (not in computational graph) are skipped.
func (s *SGD) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	parallel.For(len(s.params), s.parallel, func(i int) {
		param := s.params[i]
		grad := getGradient(param, grads)
		if grad == nil {
			return
		}
		param.SetGrad(grad)

		data := param.Tensor().Data()
		if s.momentum == 0 {
			floats.AddScaled(data, -s.lr, grad.Data())
			return
		}
		velocity := s.velocities[i].Data()
		floats.Scale(s.momentum, velocity)
		floats.Add(velocity, grad.Data())
		floats.AddScaled(data, -s.lr, velocity)
	})
	s.globalStep++
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}

// Momentum returns the momentum coefficient.
func (s *SGD) Momentum() float64 {
	return s.momentum
}

// GlobalStep returns the number of completed steps.
func (s *SGD) GlobalStep() int64 {
	return s.globalStep
}

// SetGlobalStep overrides the step counter, e.g. when resuming from a checkpoint.
func (s *SGD) SetGlobalStep(step int64) {
	s.globalStep = step
}

// StateDict returns the optimizer state for serialization.
//
// State keys: "velocity.{param_index}" -> velocity tensor, and
// "global_step" -> scalar step counter.
func (s *SGD) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{
		globalStepKey: tensor.Scalar(float64(s.globalStep)),
	}
	for i, velocity := range s.velocities {
		stateDict[fmt.Sprintf("velocity.%d", i)] = velocity
	}
	return stateDict
}

// LoadStateDict loads optimizer state from serialization.
//
// Returns an error if velocity shapes don't match parameter shapes.
func (s *SGD) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, param := range s.params {
		if s.velocities == nil {
			break
		}
		key := fmt.Sprintf("velocity.%d", i)
		velocity, exists := stateDict[key]
		if !exists {
			continue
		}
		if !velocity.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity shape mismatch for parameter %d (%s): expected %v, got %v",
				i, param.Name(), param.Tensor().Shape(), velocity.Shape())
		}
		s.velocities[i].CopyFrom(velocity)
	}

	if step, ok := stateDict[globalStepKey]; ok {
		s.globalStep = int64(step.Item())
	}
	return nil
}

var (
	_ Optimizer         = (*SGD)(nil)
	_ nn.OptimizerState = (*SGD)(nil)
)
