// Package cpu implements the reference kernels for all tensor operations.
// It is always available and serves as the fallback for accelerated
// backends.
package cpu

import (
	"github.com/pkg/errors"

	"github.com/flintml/flint/backend"
	"github.com/flintml/flint/tensor"
)

// ErrShapeMismatch is returned when operand shapes cannot be reconciled.
var ErrShapeMismatch = errors.New("cpu: shape mismatch")

// Backend holds the CPU kernel set.
type Backend struct{}

// New creates a CPU backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend name.
func (c *Backend) Name() string {
	return "CPU"
}

// Ops registers every CPU kernel in reg at the default priority 0.
func (c *Backend) Ops(reg *backend.Registry[backend.OpFunc]) {
	reg.Register(backend.OpAdd, c.Add)
	reg.Register(backend.OpSub, c.Sub)
	reg.Register(backend.OpMul, c.Mul)
	reg.Register(backend.OpMatMul, c.MatMul)
	reg.Register(backend.OpTranspose2D, unary(c.Transpose2D))
	reg.Register(backend.OpReLU, unary(c.ReLU))
	reg.Register(backend.OpSigmoid, unary(c.Sigmoid))
	reg.Register(backend.OpTanh, unary(c.Tanh))
	reg.Register(backend.OpSoftmax, unary(c.Softmax))
	reg.Register(backend.LossMSE, c.MSE)
	reg.Register(backend.LossCrossEntropy, c.CrossEntropy)
	reg.Register(backend.LossBinaryCrossEntropy, c.BinaryCrossEntropy)
}

// unary adapts a single-operand kernel to the registry's OpFunc signature;
// the second operand is ignored.
func unary(fn func(*tensor.Tensor) (*tensor.Tensor, error)) backend.OpFunc {
	return func(a, _ *tensor.Tensor) (*tensor.Tensor, error) {
		return fn(a)
	}
}
