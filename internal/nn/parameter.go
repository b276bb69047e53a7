package nn

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// Group classifies a parameter for aggregate computations such as weight decay.
type Group int

const (
	// GroupNone marks a trainable parameter that belongs to neither list.
	GroupNone Group = iota
	// GroupWeights marks parameters subject to L2 decay (conv kernels, BN scale).
	GroupWeights
	// GroupBiases marks parameters excluded from decay (conv bias, BN shift).
	GroupBiases
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupWeights:
		return "weights"
	case GroupBiases:
		return "biases"
	default:
		return "none"
	}
}

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are created at build time with a fixed initializer and mutated
// only by the optimizer. The tensor pointer is stable for the lifetime of the
// run, so it doubles as the key into gradient maps.
//
// Example:
//
//	weight := nn.NewParameter("res_net/stem/conv/weight", nn.GroupWeights, kernel)
//	grad := grads[weight.Tensor()]
type Parameter struct {
	name   string            // Scope path (e.g., "res_net/stem/conv/weight")
	group  Group             // Decay group
	tensor *tensor.RawTensor // The parameter tensor
	grad   *tensor.RawTensor // Gradient tensor (computed during backward pass)
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, group Group, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		group:  group,
		tensor: t,
	}
}

// Name returns the parameter scope path.
func (p *Parameter) Name() string {
	return p.name
}

// Group returns the decay group of the parameter.
func (p *Parameter) Group() Group {
	return p.group
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet (before backward pass).
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.RawTensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
