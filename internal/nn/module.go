// Package nn implements the neural network building blocks of the residual
// classifier.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable tensor tagged with a decay group
//   - Registry: Explicit parameter and buffer registry threaded through construction
//   - Scope: Hierarchical parameter naming (res_net/group_2/block_1/conv_1/weight)
//   - Conv2D, BatchNorm, OneHot: Tensor building blocks
//   - ResidualBlock, ResidualGroup, ResNet: Network assembly
//   - Loss, Accuracy: Objective and metric
//
// Feature maps are NHWC. Modules hold the backend they were built with; when
// that backend is an autodiff.AutodiffBackend every forward call is recorded
// for the backward pass.
package nn

import (
	"errors"
	"math/rand"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrInvalidConfig is returned when a module cannot be constructed from its
// configuration (non-positive sizes, mismatched shapes, empty groups).
var ErrInvalidConfig = errors.New("nn: invalid configuration")

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an NHWC input tensor.
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter
}

// Builder carries everything a module needs at construction time.
//
// A single Builder is passed down through the whole network so that every
// parameter lands in the same Registry and every BatchNorm observes the same
// Phase.
type Builder[B tensor.Backend] struct {
	Backend  B
	Registry *Registry
	Phase    *Phase
	Rand     *rand.Rand
}

// NewBuilder creates a Builder with a fresh registry, a training phase and a
// deterministic random source.
func NewBuilder[B tensor.Backend](backend B, seed int64) *Builder[B] {
	return &Builder[B]{
		Backend:  backend,
		Registry: NewRegistry(),
		Phase:    NewPhase(true),
		//nolint:gosec // Weight initialization is not security-critical.
		Rand: rand.New(rand.NewSource(seed)),
	}
}
