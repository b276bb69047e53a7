package nn

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/resnet/internal/serialization"
	"github.com/born-ml/resnet/internal/tensor"
)

// Checkpoint metadata keys.
const (
	metaFormat    = "format"
	metaStep      = "step"
	metaLoss      = "loss"
	metaLR        = "learning_rate"
	metaCreatedAt = "created_at"

	checkpointFormat = "resnet-checkpoint"
	optimizerPrefix  = "optimizer."
)

// OptimizerState represents an optimizer that can save/load its state.
//
// This interface is used by checkpoints to serialize optimizer state
// without creating import cycles. Optimizers from the optim package
// implement this interface.
type OptimizerState interface {
	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict loads optimizer state from serialization.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// GetLR returns the current learning rate.
	GetLR() float64
}

// Checkpoint represents a complete training state snapshot.
//
// A checkpoint includes:
//   - Parameters and batch-norm moving averages (from the Registry)
//   - Optimizer state (momentum buffers), prefixed with "optimizer."
//   - Training metadata (step, loss, learning rate)
//
// Example:
//
//	ckpt := &nn.Checkpoint{Registry: net.Registry(), Optimizer: sgd, Step: 5000, Loss: 0.42}
//	err := ckpt.Save("ckpt-5000.safetensors")
//
// To resume training:
//
//	ckpt, err := nn.LoadCheckpoint("ckpt-5000.safetensors", net.Registry(), sgd)
//	sgd.SetGlobalStep(ckpt.Step)
type Checkpoint struct {
	Registry  *Registry
	Optimizer OptimizerState // optional
	Step      int64
	Loss      float64
	Metadata  map[string]string
	CreatedAt time.Time
}

// Save writes the checkpoint as a SafeTensors file.
func (c *Checkpoint) Save(path string) error {
	state := c.Registry.StateDict()
	if c.Optimizer != nil {
		for name, raw := range c.Optimizer.StateDict() {
			state[optimizerPrefix+name] = raw
		}
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	meta := make(map[string]string, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[metaFormat] = checkpointFormat
	meta[metaStep] = strconv.FormatInt(c.Step, 10)
	meta[metaLoss] = strconv.FormatFloat(c.Loss, 'g', -1, 64)
	meta[metaCreatedAt] = createdAt.Format(time.RFC3339)
	if c.Optimizer != nil {
		meta[metaLR] = strconv.FormatFloat(c.Optimizer.GetLR(), 'g', -1, 64)
	}

	if err := serialization.WriteSafeTensors(path, state, meta); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores parameters, moving averages and optimizer state
// from path into the given registry and optimizer (which may be nil).
//
// The registry must describe the same architecture the checkpoint was saved from.
func LoadCheckpoint(path string, registry *Registry, optimizer OptimizerState) (*Checkpoint, error) {
	state, meta, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if meta[metaFormat] != checkpointFormat {
		return nil, fmt.Errorf("%s is not a checkpoint", path)
	}

	modelState := make(map[string]*tensor.RawTensor, len(state))
	optimizerState := make(map[string]*tensor.RawTensor)
	for name, raw := range state {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optimizerState[rest] = raw
			continue
		}
		modelState[name] = raw
	}

	if err := registry.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if optimizer != nil {
		if err := optimizer.LoadStateDict(optimizerState); err != nil {
			return nil, fmt.Errorf("failed to load optimizer state: %w", err)
		}
	}

	ckpt := &Checkpoint{
		Registry:  registry,
		Optimizer: optimizer,
		Metadata:  meta,
	}
	if ckpt.Step, err = strconv.ParseInt(meta[metaStep], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid step metadata: %w", err)
	}
	if ckpt.Loss, err = strconv.ParseFloat(meta[metaLoss], 64); err != nil {
		return nil, fmt.Errorf("invalid loss metadata: %w", err)
	}
	if ckpt.CreatedAt, err = time.Parse(time.RFC3339, meta[metaCreatedAt]); err != nil {
		return nil, fmt.Errorf("invalid created_at metadata: %w", err)
	}
	return ckpt, nil
}
