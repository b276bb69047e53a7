package data

import (
	"math/rand"

	"github.com/born-ml/resnet/internal/tensor"
)

// DistortPad is the zero padding added on every side before the random crop.
const DistortPad = 4

// Standardize returns (image - mean) / std with broadcasting. The MeanStd must
// have been validated against the image shape.
func Standardize(img *tensor.RawTensor, ms MeanStd) *tensor.RawTensor {
	shape := img.Shape()
	out := tensor.Zeros(shape)
	src, dst := img.Data(), out.Data()
	mean, std := ms.Mean.Data(), ms.Std.Data()
	meanShape, stdShape := ms.Mean.Shape(), ms.Std.Shape()
	for i, v := range src {
		dst[i] = (v - mean[meanShape.BroadcastIndex(shape, i)]) / std[stdShape.BroadcastIndex(shape, i)]
	}
	return out
}

// Distort takes a uniformly random H×W crop of the image zero-padded by
// DistortPad on every side, then mirrors it left-right with probability ½.
func Distort(img *tensor.RawTensor, rng *rand.Rand) *tensor.RawTensor {
	shape := img.Shape()
	h, w, c := shape[0], shape[1], shape[2]
	offY := rng.Intn(2*DistortPad+1) - DistortPad
	offX := rng.Intn(2*DistortPad+1) - DistortPad
	flip := rng.Intn(2) == 1
	return crop(img, offY, offX, flip, h, w, c)
}

// crop copies the window starting at (offY, offX) in image coordinates; pixels
// outside the image read as zero.
func crop(img *tensor.RawTensor, offY, offX int, flip bool, h, w, c int) *tensor.RawTensor {
	out := tensor.Zeros(img.Shape())
	src, dst := img.Data(), out.Data()
	for y := 0; y < h; y++ {
		sy := y + offY
		if sy < 0 || sy >= h {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x + offX
			if sx < 0 || sx >= w {
				continue
			}
			dx := x
			if flip {
				dx = w - 1 - x
			}
			copy(dst[(y*w+dx)*c:(y*w+dx+1)*c], src[(sy*w+sx)*c:(sy*w+sx+1)*c])
		}
	}
	return out
}
