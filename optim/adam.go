package optim

import (
	"math"

	"github.com/flintml/flint/tensor"
)

// Adam implements the Adam optimizer with bias-corrected first and
// second moment estimates.
//
// Update rule per element:
//
//	m = beta1*m + (1-beta1)*g
//	v = beta2*v + (1-beta2)*g*g
//	mHat = m / (1 - beta1^t)
//	vHat = v / (1 - beta2^t)
//	param = param - lr * mHat / (sqrt(vHat) + epsilon)
type Adam struct {
	params  []*tensor.Tensor
	lr      float32
	beta1   float32
	beta2   float32
	epsilon float32
	t       int // timestep, incremented per Step

	m [][]float32
	v [][]float32
}

// NewAdam creates an Adam optimizer with the standard defaults
// (beta1 0.9, beta2 0.999, epsilon 1e-8).
func NewAdam(params []*tensor.Tensor, lr float32) *Adam {
	return NewAdamConfig(params, Config{LR: lr})
}

// NewAdamConfig creates an Adam optimizer; zero-valued betas and
// epsilon take the standard defaults.
func NewAdamConfig(params []*tensor.Tensor, cfg Config) *Adam {
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	return &Adam{
		params:  params,
		lr:      cfg.LR,
		beta1:   cfg.Beta1,
		beta2:   cfg.Beta2,
		epsilon: cfg.Epsilon,
		m:       make([][]float32, len(params)),
		v:       make([][]float32, len(params)),
	}
}

// Step applies one Adam update to every parameter with a gradient.
func (a *Adam) Step() {
	a.t++
	correction1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	correction2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for i, p := range a.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data := p.Data()

		m := a.m[i]
		v := a.v[i]
		if m == nil {
			m = make([]float32, len(data))
			v = make([]float32, len(data))
			a.m[i] = m
			a.v[i] = v
		}

		for j := range data {
			g := grad[j]
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g

			mHat := m[j] / correction1
			vHat := v[j] / correction2
			data[j] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.epsilon)
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (a *Adam) ZeroGrad() {
	zeroGrads(a.params)
}
