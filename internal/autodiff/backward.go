package autodiff

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of a scalar loss using the backend's tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := backend.L2Loss(x)
//	gradients := autodiff.Backward(loss, backend)
//	grad := gradients[x] // equals x
func Backward(loss *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if loss.NumElements() != 1 {
		panic(fmt.Sprintf("backward: loss must be a scalar, got shape %v", loss.Shape()))
	}
	return tape.Backward(loss, tensor.Full(loss.Shape(), 1), backend)
}
