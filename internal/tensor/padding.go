package tensor

// Padding is the number of implicit zero rows/columns added on each side of
// the spatial dimensions before a convolution.
type Padding struct {
	Top, Bottom, Left, Right int
}

// SamePadding returns the padding that makes a convolution produce
// ceil(in/stride) outputs along each spatial axis. When the total padding is
// odd the extra row/column goes to the bottom/right.
func SamePadding(inH, inW, kernel, stride int) Padding {
	top, bottom := samePad(inH, kernel, stride)
	left, right := samePad(inW, kernel, stride)
	return Padding{Top: top, Bottom: bottom, Left: left, Right: right}
}

func samePad(in, kernel, stride int) (before, after int) {
	out := (in + stride - 1) / stride
	total := max((out-1)*stride+kernel-in, 0)
	before = total / 2
	return before, total - before
}

// ConvOutputSize returns the spatial output size of a convolution.
func ConvOutputSize(inH, inW, kernel, stride int, pad Padding) (outH, outW int) {
	outH = (inH+pad.Top+pad.Bottom-kernel)/stride + 1
	outW = (inW+pad.Left+pad.Right-kernel)/stride + 1
	return outH, outW
}
