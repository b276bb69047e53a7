package nn

import (
	"fmt"
	"sort"

	"github.com/born-ml/resnet/internal/tensor"
)

// Registry collects every parameter and non-trainable buffer created while a
// network is built.
//
// It replaces ambient graph collections: the loss queries Weights() for decay,
// the optimizer takes Trainable(), and checkpoints use StateDict().
// Registration order is preserved.
type Registry struct {
	params  []*Parameter
	buffers []namedBuffer
	names   map[string]struct{}
}

type namedBuffer struct {
	name   string
	tensor *tensor.RawTensor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a trainable parameter. Names must be unique across
// parameters and buffers.
func (r *Registry) Register(p *Parameter) error {
	if err := r.claim(p.Name()); err != nil {
		return err
	}
	r.params = append(r.params, p)
	return nil
}

// RegisterBuffer adds a non-trainable tensor (e.g. a moving average) that is
// saved with checkpoints but never updated by the optimizer.
func (r *Registry) RegisterBuffer(name string, t *tensor.RawTensor) error {
	if err := r.claim(name); err != nil {
		return err
	}
	r.buffers = append(r.buffers, namedBuffer{name: name, tensor: t})
	return nil
}

func (r *Registry) claim(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty parameter name", ErrInvalidConfig)
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("%w: duplicate name %q", ErrInvalidConfig, name)
	}
	r.names[name] = struct{}{}
	return nil
}

// Trainable returns every registered parameter.
func (r *Registry) Trainable() []*Parameter {
	return append([]*Parameter(nil), r.params...)
}

// Weights returns the parameters in the decay-eligible weight group.
func (r *Registry) Weights() []*Parameter {
	return r.byGroup(GroupWeights)
}

// Biases returns the parameters in the bias group.
func (r *Registry) Biases() []*Parameter {
	return r.byGroup(GroupBiases)
}

func (r *Registry) byGroup(g Group) []*Parameter {
	var out []*Parameter
	for _, p := range r.params {
		if p.Group() == g {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the parameter registered under name.
func (r *Registry) Lookup(name string) (*Parameter, bool) {
	for _, p := range r.params {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// StateDict returns every parameter and buffer keyed by scope path.
// The tensors are shared, not copied.
func (r *Registry) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(r.params)+len(r.buffers))
	for _, p := range r.params {
		state[p.Name()] = p.Tensor()
	}
	for _, b := range r.buffers {
		state[b.name] = b.tensor
	}
	return state
}

// LoadStateDict copies values into the registered tensors.
//
// Every registered name must be present with a matching shape; extra keys in
// state are reported as an error so mismatched architectures are caught.
func (r *Registry) LoadStateDict(state map[string]*tensor.RawTensor) error {
	current := r.StateDict()
	for name, dst := range current {
		src, ok := state[name]
		if !ok {
			return fmt.Errorf("missing tensor %q in state dict", name)
		}
		if !src.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("shape mismatch for %q: expected %v, got %v", name, dst.Shape(), src.Shape())
		}
	}
	var extra []string
	for name := range state {
		if _, ok := current[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("unexpected tensors in state dict: %v", extra)
	}
	for name, dst := range current {
		dst.CopyFrom(state[name])
	}
	return nil
}

// NumParameters returns the total number of trainable scalars.
func (r *Registry) NumParameters() int {
	total := 0
	for _, p := range r.params {
		total += p.Tensor().NumElements()
	}
	return total
}
