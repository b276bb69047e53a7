package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/resnet/internal/serialization"
	"github.com/born-ml/resnet/internal/tensor"
)

// Tensor names inside the mean/std artifact.
const (
	meanKey = "mean"
	stdKey  = "std"
)

// MeanStd is the precomputed per-dataset normalization pair. Both tensors
// broadcast against one [H, W, C] image.
type MeanStd struct {
	Mean *tensor.RawTensor
	Std  *tensor.RawTensor
}

// Validate checks that both tensors broadcast against shape and that every
// standard deviation is positive.
func (m MeanStd) Validate(shape ImageShape) error {
	if m.Mean == nil || m.Std == nil {
		return fmt.Errorf("%w: mean and std are both required", ErrBadMeanStd)
	}
	target := shape.Shape()
	if !m.Mean.Shape().BroadcastableTo(target) {
		return fmt.Errorf("%w: mean shape %v does not broadcast to %v", ErrBadMeanStd, m.Mean.Shape(), target)
	}
	if !m.Std.Shape().BroadcastableTo(target) {
		return fmt.Errorf("%w: std shape %v does not broadcast to %v", ErrBadMeanStd, m.Std.Shape(), target)
	}
	if !m.Mean.IsFinite() || !m.Std.IsFinite() {
		return fmt.Errorf("%w: non-finite values", ErrBadMeanStd)
	}
	if floats.Min(m.Std.Data()) <= 0 {
		return fmt.Errorf("%w: std must be positive", ErrBadMeanStd)
	}
	return nil
}

// LoadMeanStd reads the artifact written by SaveMeanStd and validates it
// against shape. Every failure wraps ErrBadMeanStd.
func LoadMeanStd(path string, shape ImageShape) (MeanStd, error) {
	reader, err := serialization.OpenSafeTensors(path)
	if err != nil {
		return MeanStd{}, fmt.Errorf("%w: %v", ErrBadMeanStd, err)
	}
	var ms MeanStd
	if ms.Mean, err = reader.Tensor(meanKey); err != nil {
		return MeanStd{}, fmt.Errorf("%w: %v", ErrBadMeanStd, err)
	}
	if ms.Std, err = reader.Tensor(stdKey); err != nil {
		return MeanStd{}, fmt.Errorf("%w: %v", ErrBadMeanStd, err)
	}
	if err := ms.Validate(shape); err != nil {
		return MeanStd{}, fmt.Errorf("%s: %w", path, err)
	}
	return ms, nil
}

// SaveMeanStd writes the artifact as SafeTensors with tensors "mean" and "std".
func SaveMeanStd(path string, ms MeanStd) error {
	return serialization.WriteSafeTensors(path, map[string]*tensor.RawTensor{
		meanKey: ms.Mean,
		stdKey:  ms.Std,
	}, map[string]string{"format": "mean-std"})
}

// ComputeMeanStd makes one pass over a record file and returns the per-pixel
// population mean and standard deviation, each shaped [H, W, C]. Pixels with
// zero variance get std 1 so that standardization stays finite.
func ComputeMeanStd(ctx context.Context, path string, shape ImageShape) (MeanStd, int, error) {
	//nolint:gosec // G304: path comes from the caller.
	f, err := os.Open(path)
	if err != nil {
		return MeanStd{}, 0, err
	}
	defer f.Close()

	sum := make([]float64, shape.Size())
	sumSq := make([]float64, shape.Size())
	reader := NewRecordReader(f)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return MeanStd{}, count, err
		}
		payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return MeanStd{}, count, err
		}
		rec, err := DecodeRecord(payload, shape, 0)
		if err != nil {
			return MeanStd{}, count, fmt.Errorf("record %d: %w", count, err)
		}
		pixels := rec.Image.Data()
		floats.Add(sum, pixels)
		floats.AddScaled(sumSq, 1, squares(pixels))
		count++
	}
	if count == 0 {
		return MeanStd{}, 0, fmt.Errorf("%w: no records in %s", ErrBadRecord, path)
	}

	mean := tensor.Zeros(shape.Shape())
	std := tensor.Zeros(shape.Shape())
	floats.ScaleTo(mean.Data(), 1/float64(count), sum)
	for i, m := range mean.Data() {
		variance := sumSq[i]/float64(count) - m*m
		s := math.Sqrt(math.Max(variance, 0))
		if s == 0 {
			s = 1
		}
		std.Data()[i] = s
	}
	return MeanStd{Mean: mean, Std: std}, count, nil
}

func squares(xs []float64) []float64 {
	out := make([]float64, len(xs))
	floats.MulTo(out, xs, xs)
	return out
}
