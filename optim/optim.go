// Package optim implements gradient-descent optimizers over the
// parameter tensors of a model.
package optim

import (
	"github.com/pkg/errors"

	"github.com/flintml/flint/tensor"
)

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	// Step applies one update. Parameters without an accumulated
	// gradient are left unchanged.
	Step()
	// ZeroGrad clears all parameter gradients.
	ZeroGrad()
}

// Config carries optimizer hyperparameters. Zero values fall back to
// each optimizer's defaults, except LR which must be set.
type Config struct {
	LR       float32
	Momentum float32 // SGD only
	Beta1    float32 // Adam only
	Beta2    float32 // Adam only
	Epsilon  float32 // Adam only
}

// Constructor builds an optimizer over the given parameters.
type Constructor func(params []*tensor.Tensor, cfg Config) Optimizer

var constructors = map[string]Constructor{
	"sgd": func(params []*tensor.Tensor, cfg Config) Optimizer {
		return NewSGD(params, cfg.LR, cfg.Momentum)
	},
	"adam": func(params []*tensor.Tensor, cfg Config) Optimizer {
		return NewAdamConfig(params, cfg)
	},
}

// New builds a registered optimizer by name ("sgd" or "adam").
func New(name string, params []*tensor.Tensor, cfg Config) (Optimizer, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, errors.Errorf("optim: unknown optimizer %q", name)
	}
	if cfg.LR <= 0 {
		return nil, errors.Errorf("optim: learning rate must be positive, got %v", cfg.LR)
	}
	return ctor(params, cfg), nil
}

func zeroGrads(params []*tensor.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
