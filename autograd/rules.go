package autograd

import (
	"math"

	"github.com/flintml/flint/backend"
	"github.com/flintml/flint/tensor"
)

const gradEpsilon = 1e-7

// DefaultRules returns the backward rules for the built-in operation
// set. Rules read the forward inputs and output, so the graph must be
// kept alive between the forward pass and Backward.
func DefaultRules() Rules {
	return Rules{
		backend.OpAdd:                  addBackward,
		backend.OpSub:                  subBackward,
		backend.OpMul:                  mulBackward,
		backend.OpMatMul:               matmulBackward,
		backend.OpTranspose2D:          transposeBackward,
		backend.OpReLU:                 reluBackward,
		backend.OpSigmoid:              sigmoidBackward,
		backend.OpTanh:                 tanhBackward,
		backend.OpSoftmax:              softmaxBackward,
		backend.LossMSE:                mseBackward,
		backend.LossCrossEntropy:       crossEntropyBackward,
		backend.LossBinaryCrossEntropy: bceBackward,
	}
}

// scatter adds contrib(i) for every flat output index i into the
// gradient buffer of in, collapsing broadcast dimensions. When the
// shapes match this is a straight element-wise accumulation.
func scatter(in *tensor.Tensor, outShape tensor.Shape, contrib func(i int) float32) {
	if !in.RequiresGrad() {
		return
	}
	grad := in.GradBuffer()

	if in.Shape().Equal(outShape) {
		for i := range grad {
			grad[i] += contrib(i)
		}
		return
	}

	inShape := in.Shape()
	inStrides := inShape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	pad := len(outShape) - len(inShape)

	n := outShape.NumElements()
	for i := 0; i < n; i++ {
		offset := 0
		rem := i
		for d := range outShape {
			v := rem / outStrides[d]
			rem %= outStrides[d]
			if d < pad {
				continue
			}
			if inShape[d-pad] != 1 {
				offset += v * inStrides[d-pad]
			}
		}
		grad[offset] += contrib(i)
	}
}

func addBackward(out *tensor.Tensor) {
	a, b := out.Inputs()[0], out.Inputs()[1]
	dOut := out.Grad()
	scatter(a, out.Shape(), func(i int) float32 { return dOut[i] })
	scatter(b, out.Shape(), func(i int) float32 { return dOut[i] })
}

func subBackward(out *tensor.Tensor) {
	a, b := out.Inputs()[0], out.Inputs()[1]
	dOut := out.Grad()
	scatter(a, out.Shape(), func(i int) float32 { return dOut[i] })
	scatter(b, out.Shape(), func(i int) float32 { return -dOut[i] })
}

func mulBackward(out *tensor.Tensor) {
	a, b := out.Inputs()[0], out.Inputs()[1]
	dOut := out.Grad()
	aVal := gather(a, out.Shape())
	bVal := gather(b, out.Shape())
	scatter(a, out.Shape(), func(i int) float32 { return dOut[i] * bVal(i) })
	scatter(b, out.Shape(), func(i int) float32 { return dOut[i] * aVal(i) })
}

// gather returns a reader for in's data indexed by flat output index,
// replaying the forward broadcast.
func gather(in *tensor.Tensor, outShape tensor.Shape) func(i int) float32 {
	data := in.Data()
	if in.Shape().Equal(outShape) {
		return func(i int) float32 { return data[i] }
	}

	inShape := in.Shape()
	inStrides := inShape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	pad := len(outShape) - len(inShape)

	return func(i int) float32 {
		offset := 0
		rem := i
		for d := range outShape {
			v := rem / outStrides[d]
			rem %= outStrides[d]
			if d < pad {
				continue
			}
			if inShape[d-pad] != 1 {
				offset += v * inStrides[d-pad]
			}
		}
		return data[offset]
	}
}

func matmulBackward(out *tensor.Tensor) {
	a, b := out.Inputs()[0], out.Inputs()[1]
	dOut := out.Grad()

	switch {
	case a.Rank() == 2 && b.Rank() == 2:
		m, k := a.Shape()[0], a.Shape()[1]
		n := b.Shape()[1]
		// dA = dOut @ B^T, dB = A^T @ dOut
		if a.RequiresGrad() {
			dA := a.GradBuffer()
			bd := b.Data()
			for i := 0; i < m; i++ {
				for p := 0; p < k; p++ {
					var sum float32
					for j := 0; j < n; j++ {
						sum += dOut[i*n+j] * bd[p*n+j]
					}
					dA[i*k+p] += sum
				}
			}
		}
		if b.RequiresGrad() {
			dB := b.GradBuffer()
			ad := a.Data()
			for p := 0; p < k; p++ {
				for j := 0; j < n; j++ {
					var sum float32
					for i := 0; i < m; i++ {
						sum += ad[i*k+p] * dOut[i*n+j]
					}
					dB[p*n+j] += sum
				}
			}
		}

	case a.Rank() == 2 && b.Rank() == 1:
		m, k := a.Shape()[0], a.Shape()[1]
		if a.RequiresGrad() {
			dA := a.GradBuffer()
			bd := b.Data()
			for i := 0; i < m; i++ {
				for p := 0; p < k; p++ {
					dA[i*k+p] += dOut[i] * bd[p]
				}
			}
		}
		if b.RequiresGrad() {
			dB := b.GradBuffer()
			ad := a.Data()
			for p := 0; p < k; p++ {
				var sum float32
				for i := 0; i < m; i++ {
					sum += ad[i*k+p] * dOut[i]
				}
				dB[p] += sum
			}
		}

	case a.Rank() == 1 && b.Rank() == 1:
		if a.RequiresGrad() {
			dA := a.GradBuffer()
			bd := b.Data()
			for i := range dA {
				dA[i] += dOut[0] * bd[i]
			}
		}
		if b.RequiresGrad() {
			dB := b.GradBuffer()
			ad := a.Data()
			for i := range dB {
				dB[i] += dOut[0] * ad[i]
			}
		}
	}
}

func transposeBackward(out *tensor.Tensor) {
	in := out.Inputs()[0]
	if !in.RequiresGrad() {
		return
	}
	rows, cols := out.Shape()[0], out.Shape()[1]
	dOut := out.Grad()
	dIn := in.GradBuffer()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dIn[j*rows+i] += dOut[i*cols+j]
		}
	}
}

func reluBackward(out *tensor.Tensor) {
	in := out.Inputs()[0]
	if !in.RequiresGrad() {
		return
	}
	dOut := out.Grad()
	dIn := in.GradBuffer()
	x := in.Data()
	for i := range dIn {
		if x[i] > 0 {
			dIn[i] += dOut[i]
		}
	}
}

func sigmoidBackward(out *tensor.Tensor) {
	in := out.Inputs()[0]
	if !in.RequiresGrad() {
		return
	}
	dOut := out.Grad()
	dIn := in.GradBuffer()
	y := out.Data()
	for i := range dIn {
		dIn[i] += dOut[i] * y[i] * (1 - y[i])
	}
}

func tanhBackward(out *tensor.Tensor) {
	in := out.Inputs()[0]
	if !in.RequiresGrad() {
		return
	}
	dOut := out.Grad()
	dIn := in.GradBuffer()
	y := out.Data()
	for i := range dIn {
		dIn[i] += dOut[i] * (1 - y[i]*y[i])
	}
}

// softmaxBackward applies the per-row softmax Jacobian:
// dx_i = y_i * (dy_i - sum_j dy_j * y_j).
func softmaxBackward(out *tensor.Tensor) {
	in := out.Inputs()[0]
	if !in.RequiresGrad() {
		return
	}
	cols := out.Shape()[out.Rank()-1]
	rows := out.NumElements() / cols

	dOut := out.Grad()
	dIn := in.GradBuffer()
	y := out.Data()
	for r := 0; r < rows; r++ {
		base := r * cols
		var dotVal float32
		for j := 0; j < cols; j++ {
			dotVal += dOut[base+j] * y[base+j]
		}
		for i := 0; i < cols; i++ {
			dIn[base+i] += y[base+i] * (dOut[base+i] - dotVal)
		}
	}
}

func mseBackward(out *tensor.Tensor) {
	pred, target := out.Inputs()[0], out.Inputs()[1]
	dL := out.Grad()[0]
	p, t := pred.Data(), target.Data()
	scale := 2 * dL / float32(len(p))

	if pred.RequiresGrad() {
		dP := pred.GradBuffer()
		for i := range dP {
			dP[i] += scale * (p[i] - t[i])
		}
	}
	if target.RequiresGrad() {
		dT := target.GradBuffer()
		for i := range dT {
			dT[i] -= scale * (p[i] - t[i])
		}
	}
}

func crossEntropyBackward(out *tensor.Tensor) {
	pred, target := out.Inputs()[0], out.Inputs()[1]
	dL := out.Grad()[0]
	cols := pred.Shape()[pred.Rank()-1]
	rows := pred.NumElements() / cols
	p, t := pred.Data(), target.Data()

	if pred.RequiresGrad() {
		dP := pred.GradBuffer()
		for i := range dP {
			v := p[i]
			if v < gradEpsilon {
				v = gradEpsilon
			}
			dP[i] += dL * (-t[i] / v) / float32(rows)
		}
	}
	if target.RequiresGrad() {
		dT := target.GradBuffer()
		for i := range dT {
			v := float64(p[i])
			if v < gradEpsilon {
				v = gradEpsilon
			}
			dT[i] += dL * float32(-math.Log(v)) / float32(rows)
		}
	}
}

func bceBackward(out *tensor.Tensor) {
	pred, target := out.Inputs()[0], out.Inputs()[1]
	dL := out.Grad()[0]
	p, t := pred.Data(), target.Data()
	n := float32(len(p))

	if pred.RequiresGrad() {
		dP := pred.GradBuffer()
		for i := range dP {
			v := clamp01(p[i])
			dP[i] += dL * (v - t[i]) / (v * (1 - v)) / n
		}
	}
	if target.RequiresGrad() {
		dT := target.GradBuffer()
		for i := range dT {
			v := float64(clamp01(p[i]))
			dT[i] += dL * float32(math.Log(1-v)-math.Log(v)) / n
		}
	}
}

func clamp01(v float32) float32 {
	if v < gradEpsilon {
		return gradEpsilon
	}
	if v > 1-gradEpsilon {
		return 1 - gradEpsilon
	}
	return v
}
