package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/resnet/internal/tensor"
)

// convGeometry holds the static dimensions of one convolution call.
type convGeometry struct {
	n, h, w, inC int
	kh, kw, outC int
	outH, outW   int
	stride       int
	pad          tensor.Padding
}

// rows is the number of output positions (im2col rows).
func (g convGeometry) rows() int { return g.n * g.outH * g.outW }

// patch is the length of one flattened receptive field (im2col columns).
func (g convGeometry) patch() int { return g.kh * g.kw * g.inC }

func newConvGeometry(op string, input, kernel *tensor.RawTensor, stride int, pad tensor.Padding) convGeometry {
	mustRank(op, input, 4)
	if len(kernel.Shape()) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [KH,KW,C_in,C_out], got %v", op, kernel.Shape()))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %d", op, stride))
	}
	is, ks := input.Shape(), kernel.Shape()
	g := convGeometry{
		n: is[0], h: is[1], w: is[2], inC: is[3],
		kh: ks[0], kw: ks[1], outC: ks[3],
		stride: stride, pad: pad,
	}
	if ks[2] != g.inC {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, g.inC, ks[2]))
	}
	if g.kh != g.kw {
		panic(fmt.Sprintf("%s: only square kernels are supported, got %dx%d", op, g.kh, g.kw))
	}
	g.outH, g.outW = tensor.ConvOutputSize(g.h, g.w, g.kh, stride, pad)
	if g.outH <= 0 || g.outW <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, g.outH, g.outW))
	}
	return g
}

// Conv2D performs a 2D cross-correlation using the im2col algorithm.
//
// Input shape:  [N, H, W, C_in]
// Kernel shape: [K_h, K_w, C_in, C_out]
// Output shape: [N, H_out, W_out, C_out]
//
// The im2col matrix has one row per output position and one column per
// (kh, kw, c_in) triple, which is exactly the row-major order of the kernel
// viewed as [K_h*K_w*C_in, C_out]. A single GEMM therefore yields the output
// directly in NHWC order.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride int, pad tensor.Padding) *tensor.RawTensor {
	g := newConvGeometry("conv2d", input, kernel, stride, pad)
	col := cpu.im2col(input.Data(), g)

	output := tensor.Zeros(tensor.Shape{g.n, g.outH, g.outW, g.outC})
	colM := mat.NewDense(g.rows(), g.patch(), col)
	kernelM := mat.NewDense(g.patch(), g.outC, kernel.Data())
	outM := mat.NewDense(g.rows(), g.outC, output.Data())
	outM.Mul(colM, kernelM)
	return output
}

// Conv2DInputBackward computes ∂L/∂input: grad · kernelᵀ scattered back with col2im.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride int, pad tensor.Padding) *tensor.RawTensor {
	g := newConvGeometry("conv2d_input_backward", input, kernel, stride, pad)

	colGrad := make([]float64, g.rows()*g.patch())
	colGradM := mat.NewDense(g.rows(), g.patch(), colGrad)
	gradM := mat.NewDense(g.rows(), g.outC, grad.Data())
	kernelM := mat.NewDense(g.patch(), g.outC, kernel.Data())
	colGradM.Mul(gradM, kernelM.T())

	inputGrad := tensor.Zeros(input.Shape())
	cpu.col2im(inputGrad.Data(), colGrad, g)
	return inputGrad
}

// Conv2DKernelBackward computes ∂L/∂kernel: im2col(input)ᵀ · grad.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride int, pad tensor.Padding) *tensor.RawTensor {
	g := newConvGeometry("conv2d_kernel_backward", input, kernel, stride, pad)
	col := cpu.im2col(input.Data(), g)

	kernelGrad := tensor.Zeros(kernel.Shape())
	colM := mat.NewDense(g.rows(), g.patch(), col)
	gradM := mat.NewDense(g.rows(), g.outC, grad.Data())
	kernelGradM := mat.NewDense(g.patch(), g.outC, kernelGrad.Data())
	kernelGradM.Mul(colM.T(), gradM)
	return kernelGrad
}

// im2col lays out every receptive field as one row. Padded taps stay zero.
// Because the input is NHWC, each (kh, kw) tap copies C_in contiguous values.
func (cpu *CPUBackend) im2col(input []float64, g convGeometry) []float64 {
	patch := g.patch()
	col := make([]float64, g.rows()*patch)
	perImage := g.outH * g.outW

	cpu.forEachImage(g.n, func(n int) {
		for oy := 0; oy < g.outH; oy++ {
			for ox := 0; ox < g.outW; ox++ {
				row := (n*perImage + oy*g.outW + ox) * patch
				for ky := 0; ky < g.kh; ky++ {
					iy := oy*g.stride - g.pad.Top + ky
					if iy < 0 || iy >= g.h {
						continue
					}
					for kx := 0; kx < g.kw; kx++ {
						ix := ox*g.stride - g.pad.Left + kx
						if ix < 0 || ix >= g.w {
							continue
						}
						src := ((n*g.h+iy)*g.w + ix) * g.inC
						dst := row + (ky*g.kw+kx)*g.inC
						copy(col[dst:dst+g.inC], input[src:src+g.inC])
					}
				}
			}
		}
	})
	return col
}

// col2im accumulates column gradients back onto the input positions they were read from.
func (cpu *CPUBackend) col2im(inputGrad, colGrad []float64, g convGeometry) {
	patch := g.patch()
	perImage := g.outH * g.outW

	// Each image owns a disjoint slice of inputGrad, so images run concurrently.
	cpu.forEachImage(g.n, func(n int) {
		for oy := 0; oy < g.outH; oy++ {
			for ox := 0; ox < g.outW; ox++ {
				row := (n*perImage + oy*g.outW + ox) * patch
				for ky := 0; ky < g.kh; ky++ {
					iy := oy*g.stride - g.pad.Top + ky
					if iy < 0 || iy >= g.h {
						continue
					}
					for kx := 0; kx < g.kw; kx++ {
						ix := ox*g.stride - g.pad.Left + kx
						if ix < 0 || ix >= g.w {
							continue
						}
						dst := ((n*g.h+iy)*g.w + ix) * g.inC
						src := row + (ky*g.kw+kx)*g.inC
						floats.Add(inputGrad[dst:dst+g.inC], colGrad[src:src+g.inC])
					}
				}
			}
		}
	})
}
