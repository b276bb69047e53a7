// Package train assembles the training graph around the residual network
// and drives it from the data pipeline.
package train

import (
	"fmt"
	"math"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/data"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/internal/tensor"
)

// Backend is the recording CPU backend every graph runs on.
type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// GraphConfig configures a Graph.
type GraphConfig struct {
	Net          nn.ResNetConfig
	WeightDecay  float64
	LearningRate float64
	Momentum     float64
	Seed         int64
}

// StepResult reports one training step.
type StepResult struct {
	Step        int64 // global step after the update
	Entropy     float64
	WeightDecay float64
	Total       float64
	Accuracy    float64
}

// EvalResult reports one inference pass.
type EvalResult struct {
	Entropy  float64
	Accuracy float64
	Examples int
}

// Graph owns the network, the objective and the optimizer.
type Graph struct {
	backend   Backend
	net       *nn.ResNet[Backend]
	loss      *nn.Loss[Backend]
	optimizer *optim.SGD
	summary   Summary
}

// NewGraph builds the network and its optimizer. summary may be nil.
func NewGraph(cfg GraphConfig, summary Summary) (*Graph, error) {
	backend := autodiff.New(cpu.New())
	builder := nn.NewBuilder[Backend](backend, cfg.Seed)

	net, err := nn.NewResNet(builder, cfg.Net)
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	loss, err := nn.NewLoss(builder, cfg.Net.NumClasses, cfg.WeightDecay)
	if err != nil {
		return nil, fmt.Errorf("build loss: %w", err)
	}
	if summary == nil {
		summary = Tee(nil)
	}
	return &Graph{
		backend: backend,
		net:     net,
		loss:    loss,
		optimizer: optim.NewSGD(builder.Registry.Trainable(), optim.SGDConfig{
			LR:       cfg.LearningRate,
			Momentum: cfg.Momentum,
		}),
		summary: summary,
	}, nil
}

// Net returns the underlying network.
func (g *Graph) Net() *nn.ResNet[Backend] {
	return g.net
}

// Optimizer returns the momentum optimizer.
func (g *Graph) Optimizer() *optim.SGD {
	return g.optimizer
}

// Parameters returns every trainable parameter.
func (g *Graph) Parameters() []*nn.Parameter {
	return g.net.Parameters()
}

// GlobalStep returns the number of updates applied so far.
func (g *Graph) GlobalStep() int64 {
	return g.optimizer.GlobalStep()
}

// Forward returns [batch, classes] logits in the current phase without
// recording.
func (g *Graph) Forward(images *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := g.checkImages(images); err != nil {
		return nil, err
	}
	return g.net.Forward(images), nil
}

// TrainStep runs forward and backward in training mode and applies one
// momentum update. Batch-norm moving averages advance as a side effect.
func (g *Graph) TrainStep(batch *data.Batch) (StepResult, error) {
	if err := g.checkImages(batch.Images); err != nil {
		return StepResult{}, err
	}
	g.net.Phase().SetTraining(true)

	tape := g.backend.Tape()
	tape.Clear()
	tape.StartRecording()
	logits := g.net.Forward(batch.Images)
	out, err := g.loss.Forward(logits, batch.Labels)
	if err != nil {
		tape.StopRecording()
		tape.Clear()
		return StepResult{}, err
	}
	grads := autodiff.Backward(out.Total, g.backend)
	tape.StopRecording()
	tape.Clear()

	g.optimizer.Step(grads)

	res := StepResult{
		Step:        g.optimizer.GlobalStep(),
		Entropy:     out.Entropy.Item(),
		WeightDecay: out.Decay.Item(),
		Total:       out.Total.Item(),
		Accuracy:    nn.Accuracy(logits, batch.Labels),
	}
	g.summary.Scalar(TagEntropyLoss, res.Step, res.Entropy)
	g.summary.Scalar(TagWeightDecayLoss, res.Step, res.WeightDecay)
	g.summary.Scalar(TagTotalLoss, res.Step, res.Total)
	g.summary.Scalar(TagAccuracy, res.Step, res.Accuracy)

	if math.IsNaN(res.Total) || math.IsInf(res.Total, 0) {
		return res, fmt.Errorf("step %d: loss is not finite (%g)", res.Step, res.Total)
	}
	return res, nil
}

// Evaluate runs inference with moving-average statistics. Nothing is updated.
func (g *Graph) Evaluate(batch *data.Batch) (EvalResult, error) {
	if err := g.checkImages(batch.Images); err != nil {
		return EvalResult{}, err
	}
	phase := g.net.Phase()
	training := phase.IsTraining()
	phase.SetTraining(false)
	defer phase.SetTraining(training)

	logits := g.net.Forward(batch.Images)
	out, err := g.loss.Forward(logits, batch.Labels)
	if err != nil {
		return EvalResult{}, err
	}
	return EvalResult{
		Entropy:  out.Entropy.Item(),
		Accuracy: nn.Accuracy(logits, batch.Labels),
		Examples: batch.Size(),
	}, nil
}

// SaveCheckpoint writes parameters, moving averages and optimizer state.
func (g *Graph) SaveCheckpoint(path string, loss float64) error {
	ckpt := &nn.Checkpoint{
		Registry:  g.net.Registry(),
		Optimizer: g.optimizer,
		Step:      g.optimizer.GlobalStep(),
		Loss:      loss,
		Metadata:  map[string]string{"blocks": fmt.Sprint(g.net.Config().Blocks)},
	}
	return ckpt.Save(path)
}

// RestoreCheckpoint loads a checkpoint written by SaveCheckpoint.
func (g *Graph) RestoreCheckpoint(path string) (*nn.Checkpoint, error) {
	ckpt, err := nn.LoadCheckpoint(path, g.net.Registry(), g.optimizer)
	if err != nil {
		return nil, err
	}
	g.optimizer.SetGlobalStep(ckpt.Step)
	return ckpt, nil
}

func (g *Graph) checkImages(images *tensor.RawTensor) error {
	cfg := g.net.Config()
	shape := images.Shape()
	if len(shape) != 4 || shape[1] != cfg.InputHeight || shape[2] != cfg.InputWidth || shape[3] != cfg.InputChannels {
		return fmt.Errorf("%w: images shape %v, want [batch, %d, %d, %d]",
			nn.ErrInvalidConfig, shape, cfg.InputHeight, cfg.InputWidth, cfg.InputChannels)
	}
	return nil
}
