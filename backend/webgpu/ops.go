package webgpu

import (
	"k8s.io/klog/v2"

	"github.com/flintml/flint/backend"
	"github.com/flintml/flint/backend/cpu"
	"github.com/flintml/flint/tensor"
)

// Ops registers the GPU-accelerated operation set at Priority,
// outranking any CPU registration for the same names. Shapes the
// shaders cannot handle (broadcasting, non-2D matmul operands) and
// dispatch failures fall back to the CPU backend, so a registered GPU
// op never produces a worse answer than the CPU one.
func (b *Backend) Ops(reg *backend.Registry[backend.OpFunc], fallback *cpu.Backend) {
	reg.RegisterBackend(backend.OpAdd, b.binary("add", addShader, fallback.Add), Priority)
	reg.RegisterBackend(backend.OpSub, b.binary("sub", subShader, fallback.Sub), Priority)
	reg.RegisterBackend(backend.OpMul, b.binary("mul", mulShader, fallback.Mul), Priority)
	reg.RegisterBackend(backend.OpMatMul, b.matmul(fallback), Priority)
	reg.RegisterBackend(backend.OpReLU, b.unary("relu", reluShader, fallback.ReLU), Priority)
	reg.RegisterBackend(backend.OpSigmoid, b.unary("sigmoid", sigmoidShader, fallback.Sigmoid), Priority)
	reg.RegisterBackend(backend.OpTanh, b.unary("tanh", tanhShader, fallback.Tanh), Priority)
	reg.RegisterBackend(backend.OpSoftmax, b.softmax(fallback), Priority)
}

type binaryFunc func(a, other *tensor.Tensor) (*tensor.Tensor, error)

type unaryFunc func(t *tensor.Tensor) (*tensor.Tensor, error)

func (b *Backend) binary(name, shader string, fallback binaryFunc) backend.OpFunc {
	return func(a, other *tensor.Tensor) (*tensor.Tensor, error) {
		// The element-wise shaders require identical shapes; the CPU
		// path handles broadcasting.
		if a == nil || other == nil || !a.Shape().Equal(other.Shape()) {
			return fallback(a, other)
		}
		out, err := b.runBinaryOp(a, other, name, shader)
		if err != nil {
			klog.V(1).Infof("webgpu: %s failed, using cpu: %v", name, err)
			return fallback(a, other)
		}
		return out, nil
	}
}

func (b *Backend) unary(name, shader string, fallback unaryFunc) backend.OpFunc {
	return func(a, _ *tensor.Tensor) (*tensor.Tensor, error) {
		if a == nil {
			return fallback(a)
		}
		out, err := b.runUnaryOp(a, name, shader)
		if err != nil {
			klog.V(1).Infof("webgpu: %s failed, using cpu: %v", name, err)
			return fallback(a)
		}
		return out, nil
	}
}

func (b *Backend) matmul(fallback *cpu.Backend) backend.OpFunc {
	return func(a, other *tensor.Tensor) (*tensor.Tensor, error) {
		if a == nil || other == nil || a.Rank() != 2 || other.Rank() != 2 {
			return fallback.MatMul(a, other)
		}
		out, err := b.runMatMul(a, other)
		if err != nil {
			klog.V(1).Infof("webgpu: matmul failed, using cpu: %v", err)
			return fallback.MatMul(a, other)
		}
		return out, nil
	}
}

func (b *Backend) softmax(fallback *cpu.Backend) backend.OpFunc {
	return func(a, _ *tensor.Tensor) (*tensor.Tensor, error) {
		if a == nil || a.Rank() != 2 {
			return fallback.Softmax(a)
		}
		out, err := b.runSoftmax(a)
		if err != nil {
			klog.V(1).Infof("webgpu: softmax failed, using cpu: %v", err)
			return fallback.Softmax(a)
		}
		return out, nil
	}
}
