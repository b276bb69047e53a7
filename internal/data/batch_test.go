package data

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/tensor"
)

var smallShape = ImageShape{Height: 4, Width: 4, Channels: 3}

// writeRecords writes n records whose pixels all equal the record index and
// whose label is index % 10.
func writeRecords(t *testing.T, path string, n int, shape ImageShape) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := NewRecordWriter(f)
	for i := 0; i < n; i++ {
		raw := make([]byte, shape.Size())
		for j := range raw {
			raw[j] = byte(i)
		}
		require.NoError(t, w.Write(EncodeExample(NewImageExample(raw, int64(i%10)))))
	}
	require.NoError(t, w.Flush())
}

func identity(channels int) MeanStd {
	return MeanStd{
		Mean: tensor.Zeros(tensor.Shape{channels}),
		Std:  tensor.Full(tensor.Shape{channels}, 1),
	}
}

// recordIDs recovers the record index from the first pixel of each image.
func recordIDs(b *Batch) []int {
	size := b.Images.NumElements() / b.Size()
	ids := make([]int, b.Size())
	for i := range ids {
		ids[i] = int(b.Images.Data()[i*size])
	}
	return ids
}

func TestMeanStd_ComputeSaveLoad(t *testing.T) {
	dir := t.TempDir()
	records := filepath.Join(dir, "train.tfrecords")
	writeRecords(t, records, 4, smallShape)

	ms, count, err := ComputeMeanStd(context.Background(), records, smallShape)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, smallShape.Shape(), ms.Mean.Shape())
	assert.InDelta(t, 1.5, ms.Mean.Data()[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), ms.Std.Data()[5], 1e-12)

	artifact := filepath.Join(dir, "meanstd.safetensors")
	require.NoError(t, SaveMeanStd(artifact, ms))
	loaded, err := LoadMeanStd(artifact, smallShape)
	require.NoError(t, err)
	assert.Equal(t, ms.Mean.Data(), loaded.Mean.Data())
	assert.Equal(t, ms.Std.Data(), loaded.Std.Data())
}

func TestComputeMeanStd_ConstantPixels(t *testing.T) {
	records := filepath.Join(t.TempDir(), "one.tfrecords")
	writeRecords(t, records, 1, smallShape)

	ms, _, err := ComputeMeanStd(context.Background(), records, smallShape)
	require.NoError(t, err)
	for _, s := range ms.Std.Data() {
		assert.Equal(t, 1.0, s)
	}
}

func TestLoadMeanStd_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMeanStd(filepath.Join(dir, "missing.safetensors"), smallShape)
	assert.ErrorIs(t, err, ErrBadMeanStd)

	wrongShape := filepath.Join(dir, "wrong.safetensors")
	require.NoError(t, SaveMeanStd(wrongShape, MeanStd{
		Mean: tensor.Zeros(tensor.Shape{5}),
		Std:  tensor.Full(tensor.Shape{5}, 1),
	}))
	_, err = LoadMeanStd(wrongShape, smallShape)
	assert.ErrorIs(t, err, ErrBadMeanStd)

	zeroStd := filepath.Join(dir, "zero.safetensors")
	require.NoError(t, SaveMeanStd(zeroStd, MeanStd{
		Mean: tensor.Zeros(tensor.Shape{3}),
		Std:  tensor.Zeros(tensor.Shape{3}),
	}))
	_, err = LoadMeanStd(zeroStd, smallShape)
	assert.ErrorIs(t, err, ErrBadMeanStd)
}

func TestStandardize_Broadcasts(t *testing.T) {
	img := tensor.Full(tensor.Shape{2, 2, 3}, 9)
	mean, err := tensor.FromSlice([]float64{1, 3, 5}, tensor.Shape{3})
	require.NoError(t, err)
	std, err := tensor.FromSlice([]float64{1, 2, 4}, tensor.Shape{3})
	require.NoError(t, err)

	out := Standardize(img, MeanStd{Mean: mean, Std: std})
	assert.Equal(t, tensor.Shape{2, 2, 3}, out.Shape())
	for p := 0; p < 4; p++ {
		assert.Equal(t, []float64{8, 3, 1}, out.Data()[p*3:(p+1)*3])
	}
	assert.Equal(t, 9.0, img.Data()[0])
}

func TestDistort_KeepsShapeAndPadsWithZeros(t *testing.T) {
	shape := DefaultImageShape
	img := tensor.Full(shape.Shape(), 1)
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 50; i++ {
		out := Distort(img, rng)
		require.Equal(t, shape.Shape(), out.Shape())
		ones := 0
		for _, v := range out.Data() {
			require.True(t, v == 0 || v == 1)
			if v == 1 {
				ones++
			}
		}
		minVisible := (shape.Height - DistortPad) * (shape.Width - DistortPad) * shape.Channels
		assert.GreaterOrEqual(t, ones, minVisible)
	}
}

func TestCrop_Flip(t *testing.T) {
	img, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3, 1})
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 2, 1, 6, 5, 4}, crop(img, 0, 0, true, 2, 3, 1).Data())
	assert.Equal(t, []float64{2, 3, 0, 5, 6, 0}, crop(img, 0, 1, false, 2, 3, 1).Data())
	assert.Equal(t, []float64{0, 0, 0, 1, 2, 3}, crop(img, -1, 0, false, 2, 3, 1).Data())
}

func TestShuffleBatcher_OneEpoch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.tfrecords")
	writeRecords(t, path, 100, smallShape)

	src, err := NewShuffleBatcher(ShuffleConfig{
		Path:            path,
		BatchSize:       10,
		NumReaders:      3,
		Capacity:        50,
		MinAfterDequeue: 20,
		Epochs:          1,
		Seed:            7,
		Shape:           smallShape,
		NumClasses:      10,
		MeanStd:         identity(3),
	})
	require.NoError(t, err)
	defer src.Close()

	var ids []int
	for {
		batch, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, tensor.Shape{10, 4, 4, 3}, batch.Images.Shape())
		for i, id := range recordIDs(batch) {
			assert.Equal(t, id%10, batch.Labels[i])
		}
		ids = append(ids, recordIDs(batch)...)
	}

	require.Len(t, ids, 100)
	assert.False(t, sort.IntsAreSorted(ids))
	sort.Ints(ids)
	for i, id := range ids {
		assert.Equal(t, i, id)
	}
}

func TestShuffleBatcher_CyclesForever(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.tfrecords")
	writeRecords(t, path, 5, smallShape)

	src, err := NewShuffleBatcher(ShuffleConfig{
		Path:            path,
		BatchSize:       4,
		Capacity:        8,
		MinAfterDequeue: -1,
		Distort:         true,
		Shape:           smallShape,
		NumClasses:      10,
		MeanStd:         identity(3),
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		batch, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, batch.Size())
	}
	require.NoError(t, src.Close())
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShuffleBatcher_BadRecordIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tfrecords")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := NewRecordWriter(f)
	for i := 0; i < 30; i++ {
		require.NoError(t, w.Write(EncodeExample(NewImageExample(make([]byte, smallShape.Size()), 1))))
	}
	require.NoError(t, w.Write(EncodeExample(NewImageExample(make([]byte, 7), 1))))
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())

	src, err := NewShuffleBatcher(ShuffleConfig{
		Path:            path,
		BatchSize:       5,
		Capacity:        20,
		MinAfterDequeue: 5,
		Epochs:          1,
		Shape:           smallShape,
		NumClasses:      10,
		MeanStd:         identity(3),
	})
	require.NoError(t, err)
	defer src.Close()

	for i := 0; i < 10; i++ {
		_, err = src.Next(context.Background())
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestShuffleBatcher_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.tfrecords")
	writeRecords(t, path, 1, smallShape)

	_, err := NewShuffleBatcher(ShuffleConfig{
		Path: path, BatchSize: 10, Capacity: 15, MinAfterDequeue: 10,
		Shape: smallShape, MeanStd: identity(3),
	})
	assert.Error(t, err)

	_, err = NewShuffleBatcher(ShuffleConfig{
		Path: path, BatchSize: 10, Shape: smallShape,
		MeanStd: MeanStd{Mean: tensor.Zeros(tensor.Shape{2}), Std: tensor.Full(tensor.Shape{2}, 1)},
	})
	assert.ErrorIs(t, err, ErrBadMeanStd)

	_, err = NewShuffleBatcher(ShuffleConfig{
		Path: filepath.Join(t.TempDir(), "missing"), BatchSize: 10, Shape: smallShape, MeanStd: identity(3),
	})
	assert.Error(t, err)
}

func TestSequentialBatcher_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.tfrecords")
	writeRecords(t, path, 25, smallShape)

	src, err := NewSequentialBatcher(SequentialConfig{
		Path: path, BatchSize: 10, Shape: smallShape, NumClasses: 10, MeanStd: identity(3),
	})
	require.NoError(t, err)
	defer src.Close()

	first, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, recordIDs(first))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, first.Labels)

	second, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, recordIDs(second))

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSequentialBatcher_Repeat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.tfrecords")
	writeRecords(t, path, 6, smallShape)

	src, err := NewSequentialBatcher(SequentialConfig{
		Path: path, BatchSize: 4, Repeat: true, Shape: smallShape, MeanStd: identity(3),
	})
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.NoError(t, err)
	wrapped, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 0, 1}, recordIDs(wrapped))
}

func TestSequentialBatcher_StandardizesWithoutDistortion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.tfrecords")
	writeRecords(t, path, 2, smallShape)

	ms := MeanStd{Mean: tensor.Full(tensor.Shape{3}, 1), Std: tensor.Full(tensor.Shape{3}, 2)}
	src, err := NewSequentialBatcher(SequentialConfig{
		Path: path, BatchSize: 2, Shape: smallShape, MeanStd: ms,
	})
	require.NoError(t, err)
	defer src.Close()

	batch, err := src.Next(context.Background())
	require.NoError(t, err)
	size := smallShape.Size()
	for _, v := range batch.Images.Data()[:size] {
		assert.Equal(t, -0.5, v)
	}
	for _, v := range batch.Images.Data()[size:] {
		assert.Equal(t, 0.0, v)
	}
}
