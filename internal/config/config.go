// Package config loads the YAML run configuration for training.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	WeightDecay     float64 `yaml:"weight_decay"`
	MeanStdPath     string  `yaml:"mean_std_path"`
	TrainRecords    string  `yaml:"train_records"`
	EvalRecords     string  `yaml:"eval_records"`
	Depth           int     `yaml:"depth"` // blocks per residual group
	NumClasses      int     `yaml:"num_classes"`
	BatchSize       int     `yaml:"batch_size"`
	EvalBatchSize   int     `yaml:"eval_batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	Momentum        float64 `yaml:"momentum"`
	Steps           int     `yaml:"steps"`
	NumReaders      int     `yaml:"num_readers"`
	ShuffleCapacity int     `yaml:"shuffle_capacity"`
	MinAfterDequeue int     `yaml:"min_after_dequeue"`
	Seed            int64   `yaml:"seed"`
	LogEvery        int     `yaml:"log_every"`
	EvalEvery       int     `yaml:"eval_every"`
	EvalBatches     int     `yaml:"eval_batches"`
	CheckpointDir   string  `yaml:"checkpoint_dir"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	MeanStdPath   string
	TrainRecords  string
	EvalRecords   string
	CheckpointDir string
	WeightDecay   float64
	LearningRate  float64
	Depth         int
	BatchSize     int
	Steps         int
	NumReaders    int
	Seed          int64
	LogEvery      int
	EvalEvery     int
}

// Default returns the CIFAR-10 ResNet-32 recipe.
func Default() *Config {
	return &Config{
		WeightDecay:     1e-4,
		Depth:           5,
		NumClasses:      10,
		BatchSize:       128,
		EvalBatchSize:   100,
		LearningRate:    0.1,
		Momentum:        0.9,
		Steps:           64000,
		NumReaders:      4,
		ShuffleCapacity: 50000,
		MinAfterDequeue: 1000,
		Seed:            1,
		LogEvery:        10,
		EvalEvery:       1000,
		EvalBatches:     100,
		CheckpointEvery: 5000,
	}
}

// Load reads a Config from YAML on top of Default. Keys absent from the file
// keep their default values. The result is not validated so that overrides can
// be applied first.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: path comes from the command line.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.MeanStdPath != "" {
		c.MeanStdPath = o.MeanStdPath
	}
	if o.TrainRecords != "" {
		c.TrainRecords = o.TrainRecords
	}
	if o.EvalRecords != "" {
		c.EvalRecords = o.EvalRecords
	}
	if o.CheckpointDir != "" {
		c.CheckpointDir = o.CheckpointDir
	}
	if o.WeightDecay > 0 {
		c.WeightDecay = o.WeightDecay
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Depth > 0 {
		c.Depth = o.Depth
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Steps > 0 {
		c.Steps = o.Steps
	}
	if o.NumReaders > 0 {
		c.NumReaders = o.NumReaders
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.EvalEvery > 0 {
		c.EvalEvery = o.EvalEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.TrainRecords == "" {
		return errors.New("train_records must be set")
	}
	if c.MeanStdPath == "" {
		return errors.New("mean_std_path must be set")
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("weight_decay must be >= 0 (got %g)", c.WeightDecay)
	}
	if c.Depth < 1 {
		return fmt.Errorf("depth must be >= 1 (got %d)", c.Depth)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("num_classes must be >= 2 (got %d)", c.NumClasses)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return fmt.Errorf("momentum must be in [0, 1) (got %g)", c.Momentum)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be > 0 (got %d)", c.Steps)
	}
	if c.NumReaders <= 0 {
		return fmt.Errorf("num_readers must be > 0 (got %d)", c.NumReaders)
	}
	if c.MinAfterDequeue < 0 {
		return fmt.Errorf("min_after_dequeue must be >= 0 (got %d)", c.MinAfterDequeue)
	}
	if c.ShuffleCapacity < c.BatchSize+c.MinAfterDequeue {
		return fmt.Errorf("shuffle_capacity must be >= batch_size + min_after_dequeue (got %d)", c.ShuffleCapacity)
	}
	if c.EvalRecords != "" && c.EvalBatchSize <= 0 {
		return fmt.Errorf("eval_batch_size must be > 0 (got %d)", c.EvalBatchSize)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 10
	}
	if c.EvalBatches <= 0 {
		c.EvalBatches = 1
	}
	return nil
}
