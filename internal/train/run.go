package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/resnet/internal/config"
	"github.com/born-ml/resnet/internal/data"
	"github.com/born-ml/resnet/internal/nn"
)

const checkpointPattern = "ckpt-*.safetensors"

// RunConfig configures Run.
type RunConfig struct {
	Config  *config.Config
	Logger  *slog.Logger // nil discards
	Summary Summary      // added to the log summary when set
}

// RunResult summarizes a finished run.
type RunResult struct {
	Step       int64
	Last       StepResult
	Eval       *EvalResult // last evaluation, nil if none ran
	Checkpoint string      // last checkpoint written, empty if none
}

// Run trains until the configured number of steps, resuming from the newest
// checkpoint in the checkpoint directory when one exists.
func Run(ctx context.Context, rc RunConfig) (*RunResult, error) {
	cfg := rc.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := rc.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	summary := Summary(NewLogSummary(logger))
	if rc.Summary != nil {
		summary = Tee{summary, rc.Summary}
	}

	shape := data.DefaultImageShape
	meanStd, err := data.LoadMeanStd(cfg.MeanStdPath, shape)
	if err != nil {
		return nil, err
	}

	netCfg := nn.DefaultResNetConfig(cfg.Depth)
	netCfg.NumClasses = cfg.NumClasses
	graph, err := NewGraph(GraphConfig{
		Net:          netCfg,
		WeightDecay:  cfg.WeightDecay,
		LearningRate: cfg.LearningRate,
		Momentum:     cfg.Momentum,
		Seed:         cfg.Seed,
	}, summary)
	if err != nil {
		return nil, err
	}
	logger.Info("built network",
		"depth", graph.Net().NumWeightedLayers(),
		"parameters", graph.Net().Registry().NumParameters(),
		"weight_decay", cfg.WeightDecay)

	if cfg.CheckpointDir != "" {
		if err := os.MkdirAll(cfg.CheckpointDir, 0o750); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
		latest, err := latestCheckpoint(cfg.CheckpointDir)
		if err != nil {
			return nil, err
		}
		if latest != "" {
			ckpt, err := graph.RestoreCheckpoint(latest)
			if err != nil {
				return nil, fmt.Errorf("resume from %s: %w", latest, err)
			}
			logger.Info("resumed", "checkpoint", latest, "step", ckpt.Step)
		}
	}

	minAfterDequeue := cfg.MinAfterDequeue
	if minAfterDequeue == 0 {
		minAfterDequeue = -1
	}
	trainSrc, err := data.NewShuffleBatcher(data.ShuffleConfig{
		Path:            cfg.TrainRecords,
		BatchSize:       cfg.BatchSize,
		NumReaders:      cfg.NumReaders,
		Capacity:        cfg.ShuffleCapacity,
		MinAfterDequeue: minAfterDequeue,
		Seed:            cfg.Seed,
		Distort:         true,
		Shape:           shape,
		NumClasses:      cfg.NumClasses,
		MeanStd:         meanStd,
	})
	if err != nil {
		return nil, err
	}
	defer trainSrc.Close()

	var eval data.Source
	if cfg.EvalRecords != "" {
		seq, err := data.NewSequentialBatcher(data.SequentialConfig{
			Path:       cfg.EvalRecords,
			BatchSize:  cfg.EvalBatchSize,
			Repeat:     true,
			Shape:      shape,
			NumClasses: cfg.NumClasses,
			MeanStd:    meanStd,
		})
		if err != nil {
			return nil, err
		}
		defer seq.Close()
		eval = seq
	}

	result := &RunResult{Step: graph.GlobalStep()}
	start := time.Now()
	examples := 0
	for graph.GlobalStep() < int64(cfg.Steps) {
		batch, err := trainSrc.Next(ctx)
		if err != nil {
			return result, fmt.Errorf("next training batch: %w", err)
		}
		res, err := graph.TrainStep(batch)
		if err != nil {
			return result, err
		}
		result.Step, result.Last = res.Step, res
		examples += batch.Size()

		if res.Step%int64(cfg.LogEvery) == 0 {
			elapsed := time.Since(start)
			logger.Info("step",
				"step", res.Step,
				"loss", res.Total,
				"entropy", res.Entropy,
				"accuracy", res.Accuracy,
				"examples_per_sec", float64(examples)/elapsed.Seconds())
			start, examples = time.Now(), 0
		}
		if eval != nil && cfg.EvalEvery > 0 && res.Step%int64(cfg.EvalEvery) == 0 {
			ev, err := evaluate(ctx, graph, eval, cfg.EvalBatches)
			if err != nil {
				return result, err
			}
			summary.Scalar(TagEvalEntropyLoss, res.Step, ev.Entropy)
			summary.Scalar(TagEvalAccuracy, res.Step, ev.Accuracy)
			logger.Info("eval", "step", res.Step, "entropy", ev.Entropy, "accuracy", ev.Accuracy, "examples", ev.Examples)
			result.Eval = &ev
		}
		if cfg.CheckpointDir != "" && cfg.CheckpointEvery > 0 && res.Step%int64(cfg.CheckpointEvery) == 0 {
			if result.Checkpoint, err = saveCheckpoint(graph, cfg.CheckpointDir, res); err != nil {
				return result, err
			}
			logger.Info("saved checkpoint", "path", result.Checkpoint)
		}
	}

	if cfg.CheckpointDir != "" && (cfg.CheckpointEvery <= 0 || result.Step%int64(cfg.CheckpointEvery) != 0) {
		if result.Checkpoint, err = saveCheckpoint(graph, cfg.CheckpointDir, result.Last); err != nil {
			return result, err
		}
		logger.Info("saved checkpoint", "path", result.Checkpoint)
	}
	return result, nil
}

// evaluate averages batches inference passes over src, weighting by examples.
func evaluate(ctx context.Context, graph *Graph, src data.Source, batches int) (EvalResult, error) {
	var total EvalResult
	for i := 0; i < batches; i++ {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return EvalResult{}, fmt.Errorf("next eval batch: %w", err)
		}
		res, err := graph.Evaluate(batch)
		if err != nil {
			return EvalResult{}, err
		}
		n := float64(res.Examples)
		total.Entropy += res.Entropy * n
		total.Accuracy += res.Accuracy * n
		total.Examples += res.Examples
	}
	if total.Examples > 0 {
		total.Entropy /= float64(total.Examples)
		total.Accuracy /= float64(total.Examples)
	}
	return total, nil
}

func saveCheckpoint(graph *Graph, dir string, res StepResult) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("ckpt-%d.safetensors", res.Step))
	if err := graph.SaveCheckpoint(path, res.Total); err != nil {
		return "", err
	}
	return path, nil
}

// latestCheckpoint returns the checkpoint in dir with the highest step, or ""
// when there is none.
func latestCheckpoint(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, checkpointPattern))
	if err != nil {
		return "", err
	}
	latest, best := "", int64(-1)
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "ckpt-"), ".safetensors")
		step, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		if step > best {
			latest, best = m, step
		}
	}
	return latest, nil
}
