package data

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// ImageShape is the fixed [H, W, C] geometry of every record.
type ImageShape struct {
	Height   int
	Width    int
	Channels int
}

// DefaultImageShape is 32×32×3.
var DefaultImageShape = ImageShape{Height: 32, Width: 32, Channels: 3}

// Shape returns the tensor shape [H, W, C].
func (s ImageShape) Shape() tensor.Shape {
	return tensor.Shape{s.Height, s.Width, s.Channels}
}

// Size returns H·W·C.
func (s ImageShape) Size() int {
	return s.Height * s.Width * s.Channels
}

// Record is one decoded (image, label) pair.
type Record struct {
	Image *tensor.RawTensor // [H, W, C]
	Label int
}

// DecodeImage interprets raw as a uint8 H×W×C buffer and widens it to float64.
// The buffer must hold exactly H·W·C bytes.
func DecodeImage(raw []byte, shape ImageShape) (*tensor.RawTensor, error) {
	if len(raw) != shape.Size() {
		return nil, fmt.Errorf("%w: image_raw has %d bytes, want %d (%dx%dx%d)",
			ErrBadRecord, len(raw), shape.Size(), shape.Height, shape.Width, shape.Channels)
	}
	img := tensor.Zeros(shape.Shape())
	dst := img.Data()
	for i, b := range raw {
		dst[i] = float64(b)
	}
	return img, nil
}

// DecodeRecord parses one serialized tf.Example into a Record. Labels must lie
// in [0, numClasses) when numClasses > 0.
func DecodeRecord(payload []byte, shape ImageShape, numClasses int) (Record, error) {
	example, err := DecodeExample(payload)
	if err != nil {
		return Record{}, err
	}
	raw, err := example.Bytes(FeatureImageRaw)
	if err != nil {
		return Record{}, err
	}
	label, err := example.Int64(FeatureLabel)
	if err != nil {
		return Record{}, err
	}
	if label < 0 || (numClasses > 0 && label >= int64(numClasses)) {
		return Record{}, fmt.Errorf("%w: label %d out of range [0, %d)", ErrBadRecord, label, numClasses)
	}
	img, err := DecodeImage(raw, shape)
	if err != nil {
		return Record{}, err
	}
	return Record{Image: img, Label: int(label)}, nil
}
