package nn

import "sync/atomic"

// Phase is the runtime training/inference switch shared by every BatchNorm in
// a network. It is read on every forward pass, so the same parameters serve
// both modes for the lifetime of the process.
type Phase struct {
	training atomic.Bool
}

// NewPhase creates a phase in the given mode.
func NewPhase(training bool) *Phase {
	p := &Phase{}
	p.training.Store(training)
	return p
}

// SetTraining switches between training (true) and inference (false).
func (p *Phase) SetTraining(training bool) {
	p.training.Store(training)
}

// IsTraining reports whether forward passes use batch statistics.
func (p *Phase) IsTraining() bool {
	return p.training.Load()
}
