package nn

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// OneHot encodes labels as rows of the numClasses×numClasses identity matrix.
//
// Returns a [len(labels), numClasses] tensor, or an error if a label is out of
// range.
func OneHot(labels []int, numClasses int) (*tensor.RawTensor, error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("%w: one-hot with %d classes", ErrInvalidConfig, numClasses)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: one-hot of an empty batch", ErrInvalidConfig)
	}
	eye := tensor.Eye(numClasses).Data()
	out := tensor.Zeros(tensor.Shape{len(labels), numClasses})
	dst := out.Data()
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("label %d at index %d out of range [0, %d)", label, i, numClasses)
		}
		copy(dst[i*numClasses:(i+1)*numClasses], eye[label*numClasses:(label+1)*numClasses])
	}
	return out, nil
}
