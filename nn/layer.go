// Package nn provides neural network layers built on the engine's
// operation set, plus binary persistence for trained models.
package nn

import (
	"math"

	"github.com/pkg/errors"

	"github.com/flintml/flint/engine"
	"github.com/flintml/flint/tensor"
)

// Layer is a single stage of a Network. Parameters returns the
// trainable tensors, in a stable order; parameter-free layers return
// nil.
type Layer interface {
	Name() string
	Forward(e *engine.Engine, x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Linear is a fully connected layer computing x @ W + b.
// Input shape (batch, in), output shape (batch, out).
type Linear struct {
	Weight *tensor.Tensor // (in, out)
	Bias   *tensor.Tensor // (out,)
}

// NewLinear creates a Linear layer with He-initialized weights drawn
// from the engine's seed and a zero bias.
func NewLinear(e *engine.Engine, in, out int) *Linear {
	w := e.Randn(tensor.Shape{in, out})
	scale := float32(math.Sqrt(2.0 / float64(in)))
	for i, v := range w.Data() {
		w.Data()[i] = v * scale
	}
	return &Linear{
		Weight: w.SetRequiresGrad(true),
		Bias:   tensor.Zeros(tensor.Shape{out}).SetRequiresGrad(true),
	}
}

func (l *Linear) Name() string { return "linear" }

func (l *Linear) Forward(e *engine.Engine, x *tensor.Tensor) (*tensor.Tensor, error) {
	xw, err := e.MatMul(x, l.Weight)
	if err != nil {
		return nil, errors.Wrap(err, "linear")
	}
	out, err := e.Add(xw, l.Bias)
	if err != nil {
		return nil, errors.Wrap(err, "linear")
	}
	return out, nil
}

func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.Weight, l.Bias}
}

// Activation is a parameter-free layer applying a unary operation by
// name through the engine's registry.
type Activation struct {
	op string
}

// ReLU returns a ReLU activation layer.
func ReLU() *Activation { return &Activation{op: "relu"} }

// Sigmoid returns a sigmoid activation layer.
func Sigmoid() *Activation { return &Activation{op: "sigmoid"} }

// Tanh returns a tanh activation layer.
func Tanh() *Activation { return &Activation{op: "tanh"} }

// Softmax returns a softmax activation layer over the last axis.
func Softmax() *Activation { return &Activation{op: "softmax"} }

func (a *Activation) Name() string { return a.op }

func (a *Activation) Forward(e *engine.Engine, x *tensor.Tensor) (*tensor.Tensor, error) {
	return e.Call(a.op, x, nil)
}

func (a *Activation) Parameters() []*tensor.Tensor { return nil }

// Network is a sequential stack of layers.
type Network struct {
	layers []Layer
}

// Sequential builds a Network running the given layers in order.
func Sequential(layers ...Layer) *Network {
	return &Network{layers: layers}
}

// Layers returns the network's layers in forward order.
func (n *Network) Layers() []Layer { return n.layers }

// Forward runs the input through every layer in order.
func (n *Network) Forward(e *engine.Engine, x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	var err error
	for i, layer := range n.layers {
		out, err = layer.Forward(e, out)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d (%s)", i, layer.Name())
		}
	}
	return out, nil
}

// Parameters returns all trainable tensors across the network.
func (n *Network) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, layer := range n.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}
