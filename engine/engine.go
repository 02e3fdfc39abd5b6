// Package engine wires the operation registry, the compute backends,
// and reverse-mode differentiation into a single entry point. An
// Engine owns its registries, so two engines never share state.
//
// An Engine and the tensors flowing through it are confined to one
// goroutine. Run concurrent work on separate engines.
package engine

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/flintml/flint/autograd"
	"github.com/flintml/flint/backend"
	"github.com/flintml/flint/backend/cpu"
	"github.com/flintml/flint/backend/webgpu"
	"github.com/flintml/flint/tensor"
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	seed   int64
	useGPU bool
}

// WithSeed sets the seed for tensors the engine creates. The default
// is 42.
func WithSeed(seed int64) Option {
	return func(c *config) { c.seed = seed }
}

// WithGPU asks the engine to initialize the WebGPU backend. When no
// adapter or device can be acquired the engine keeps running on CPU;
// GPU availability is reported by Accelerated.
func WithGPU() Option {
	return func(c *config) { c.useGPU = true }
}

// Engine evaluates tensor operations through a priority-ranked
// operation registry and records the graph for Backward.
type Engine struct {
	ops   *backend.Registry[backend.OpFunc]
	rules autograd.Rules

	cpu *cpu.Backend
	gpu *webgpu.Backend

	seed int64
}

// New creates an Engine with the CPU backend registered and, if
// requested via WithGPU, the WebGPU backend layered on top.
func New(opts ...Option) *Engine {
	cfg := config{seed: 42}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		ops:   backend.NewRegistry[backend.OpFunc](),
		rules: autograd.DefaultRules(),
		cpu:   cpu.New(),
		seed:  cfg.seed,
	}
	e.cpu.Ops(e.ops)

	if cfg.useGPU {
		gpu, err := webgpu.New()
		if err != nil {
			klog.V(1).Infof("engine: gpu unavailable, staying on cpu: %v", err)
		} else {
			e.gpu = gpu
			e.gpu.Ops(e.ops, e.cpu)
			klog.V(1).Infof("engine: using %s", gpu.Name())
		}
	}
	return e
}

// Close releases backend resources. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e.gpu != nil {
		e.gpu.Release()
		e.gpu = nil
	}
}

// Accelerated reports whether the WebGPU backend is active.
func (e *Engine) Accelerated() bool {
	return e.gpu != nil
}

// Ops exposes the operation registry, mainly so callers can register
// custom operations alongside the built-in set.
func (e *Engine) Ops() *backend.Registry[backend.OpFunc] {
	return e.ops
}

// Rules exposes the backward-rule table so custom operations can add
// their gradients.
func (e *Engine) Rules() autograd.Rules {
	return e.rules
}

// Call resolves an operation by name and evaluates it. Pass nil for b
// on unary operations. The result is linked into the autograd graph
// when any operand requires grad.
func (e *Engine) Call(name string, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	fn, ok := e.ops.Lookup(name)
	if !ok {
		return nil, errors.Wrap(backend.ErrNotFound, name)
	}
	out, err := fn(a, b)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	if b != nil {
		out.AttachOp(name, a, b)
	} else {
		out.AttachOp(name, a)
	}
	return out, nil
}

// Add returns a + b with broadcasting.
func (e *Engine) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpAdd, a, b)
}

// Sub returns a - b with broadcasting.
func (e *Engine) Sub(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpSub, a, b)
}

// Mul returns the element-wise product with broadcasting.
func (e *Engine) Mul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpMul, a, b)
}

// MatMul returns the matrix product of a and b.
func (e *Engine) MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpMatMul, a, b)
}

// Transpose2D swaps the axes of a rank-2 tensor.
func (e *Engine) Transpose2D(a *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpTranspose2D, a, nil)
}

// ReLU applies max(0, x) element-wise.
func (e *Engine) ReLU(a *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpReLU, a, nil)
}

// Sigmoid applies the logistic function element-wise.
func (e *Engine) Sigmoid(a *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpSigmoid, a, nil)
}

// Tanh applies the hyperbolic tangent element-wise.
func (e *Engine) Tanh(a *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpTanh, a, nil)
}

// Softmax normalizes along the last axis so each row sums to one.
func (e *Engine) Softmax(a *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.OpSoftmax, a, nil)
}

// MSE returns the mean squared error as a single-element tensor.
func (e *Engine) MSE(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.LossMSE, pred, target)
}

// CrossEntropy returns the row-averaged cross-entropy loss.
func (e *Engine) CrossEntropy(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.LossCrossEntropy, pred, target)
}

// BinaryCrossEntropy returns the element-averaged binary
// cross-entropy loss.
func (e *Engine) BinaryCrossEntropy(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(backend.LossBinaryCrossEntropy, pred, target)
}

// Backward runs reverse-mode differentiation from root, typically a
// loss tensor, accumulating gradients into every reachable tensor
// that requires grad.
func (e *Engine) Backward(root *tensor.Tensor) error {
	return autograd.Backward(root, e.rules)
}

// ZeroGrad clears the gradients of the given tensors. Call between
// training steps; gradients otherwise accumulate.
func (e *Engine) ZeroGrad(ts ...*tensor.Tensor) {
	for _, t := range ts {
		t.ZeroGrad()
	}
}

// Randn creates a normally distributed tensor from the engine's seed.
// Each call advances the seed so repeated calls differ while the whole
// sequence stays reproducible.
func (e *Engine) Randn(shape tensor.Shape) *tensor.Tensor {
	t := tensor.Randn(shape, e.seed)
	e.seed++
	return t
}

// Rand creates a uniform [0, 1) tensor from the engine's seed.
func (e *Engine) Rand(shape tensor.Shape) *tensor.Tensor {
	t := tensor.Rand(shape, e.seed)
	e.seed++
	return t
}
