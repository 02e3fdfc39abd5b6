package optim

import (
	"github.com/flintml/flint/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*tensor.Tensor
	lr         float32
	momentum   float32
	velocities [][]float32 // allocated lazily, indexed like params
}

// NewSGD creates an SGD optimizer. Momentum 0 disables velocity
// tracking.
func NewSGD(params []*tensor.Tensor, lr, momentum float32) *SGD {
	return &SGD{
		params:     params,
		lr:         lr,
		momentum:   momentum,
		velocities: make([][]float32, len(params)),
	}
}

// Step applies one SGD update to every parameter with a gradient.
func (s *SGD) Step() {
	for i, p := range s.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data := p.Data()

		if s.momentum == 0 {
			for j := range data {
				data[j] -= s.lr * grad[j]
			}
			continue
		}

		v := s.velocities[i]
		if v == nil {
			v = make([]float32, len(data))
			s.velocities[i] = v
		}
		for j := range data {
			v[j] = s.momentum*v[j] + grad[j]
			data[j] -= s.lr * v[j]
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (s *SGD) ZeroGrad() {
	zeroGrads(s.params)
}
