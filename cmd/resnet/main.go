// Package main provides the resnet CLI: training and mean/std precomputation
// for CIFAR-style residual networks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/resnet/internal/config"
	"github.com/born-ml/resnet/internal/data"
	"github.com/born-ml/resnet/internal/train"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(ctx, os.Args[2:])
	case "meanstd":
		err = runMeanStd(ctx, os.Args[2:])
	case "version":
		fmt.Printf("resnet %s\n", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: resnet <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  train      Train a residual network on TFRecord data\n")
	fmt.Fprintf(os.Stderr, "  meanstd    Compute the per-pixel mean/std artifact of a record file\n")
	fmt.Fprintf(os.Stderr, "  version    Show version\n")
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config (defaults are used when empty)")
	trainRecords := fs.String("train-records", "", "Override training TFRecord file")
	evalRecords := fs.String("eval-records", "", "Override evaluation TFRecord file")
	meanStd := fs.String("mean-std", "", "Override mean/std artifact path")
	checkpointDir := fs.String("checkpoint-dir", "", "Override checkpoint directory")
	weightDecay := fs.Float64("weight-decay", 0, "Override weight decay coefficient")
	lr := fs.Float64("lr", 0, "Override learning rate")
	depth := fs.Int("depth", 0, "Override blocks per residual group (network depth is 6n+2)")
	steps := fs.Int("steps", 0, "Override number of training steps")
	batchSize := fs.Int("batch-size", 0, "Override batch size")
	numReaders := fs.Int("num-readers", 0, "Override number of decode workers")
	seed := fs.Int64("seed", 0, "Override PRNG seed")
	logEvery := fs.Int("log-every", 0, "Override log interval in steps")
	evalEvery := fs.Int("eval-every", 0, "Override evaluation interval in steps")
	verbose := fs.Bool("v", false, "Log every summary scalar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := newLogger(*verbose)

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyOverrides(config.Overrides{
		MeanStdPath:   *meanStd,
		TrainRecords:  *trainRecords,
		EvalRecords:   *evalRecords,
		CheckpointDir: *checkpointDir,
		WeightDecay:   *weightDecay,
		LearningRate:  *lr,
		Depth:         *depth,
		BatchSize:     *batchSize,
		Steps:         *steps,
		NumReaders:    *numReaders,
		Seed:          *seed,
		LogEvery:      *logEvery,
		EvalEvery:     *evalEvery,
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	res, err := train.Run(ctx, train.RunConfig{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	logger.Info("training finished", "step", res.Step, "loss", res.Last.Total, "checkpoint", res.Checkpoint)
	return nil
}

func runMeanStd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("meanstd", flag.ExitOnError)
	records := fs.String("records", "", "TFRecord file to scan")
	out := fs.String("out", "meanstd.safetensors", "Output artifact path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := newLogger(false)
	if *records == "" {
		return errors.New("-records is required")
	}

	ms, count, err := data.ComputeMeanStd(ctx, *records, data.DefaultImageShape)
	if err != nil {
		return err
	}
	if err := data.SaveMeanStd(*out, ms); err != nil {
		return err
	}
	logger.Info("wrote mean/std artifact", "path", *out, "records", count)
	return nil
}
